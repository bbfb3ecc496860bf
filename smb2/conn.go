// MIT License
//
// Copyright (c) 2017 stacktitan
// Copyright (c) 2023 Jimmy Fjällid for extensions beyond login for SMB 2.1
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package smb2

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/proxy"

	"github.com/nordfjell/smbclient/smb2/encoder"
)

// Maximum NetBIOS session message payload.
const maxFrameSize = 0x00FFFFFF

// Options controls how Dial establishes and runs a connection.
type Options struct {
	Host                  string
	Port                  int
	Initiator             Initiator
	DialTimeout           time.Duration
	RequestTimeout        time.Duration // Per-request reply deadline, 0 waits forever
	RequireMessageSigning bool
	ProxyDialer           proxy.Dialer
}

type requestResponse struct {
	msgID        uint64
	creditCharge uint16
	pkt          []byte // The raw request signed and framed for retransmission diagnostics
	recv         chan []byte
	err          error
}

type outstandingRequests struct {
	m        sync.Mutex
	requests map[uint64]*requestResponse
}

func newOutstandingRequests() *outstandingRequests {
	return &outstandingRequests{
		requests: make(map[uint64]*requestResponse, 0),
	}
}

func (r *outstandingRequests) pop(msgID uint64) (rr *requestResponse, ok bool) {
	r.m.Lock()
	defer r.m.Unlock()

	rr, ok = r.requests[msgID]
	if !ok {
		return
	}
	delete(r.requests, msgID)
	return
}

func (r *outstandingRequests) get(msgID uint64) (rr *requestResponse, ok bool) {
	r.m.Lock()
	defer r.m.Unlock()

	rr, ok = r.requests[msgID]
	return
}

func (r *outstandingRequests) set(msgID uint64, rr *requestResponse) {
	r.m.Lock()
	defer r.m.Unlock()
	r.requests[msgID] = rr
}

// shutdown fails every in-flight request with err and empties the map.
func (r *outstandingRequests) shutdown(err error) {
	r.m.Lock()
	defer r.m.Unlock()
	for _, rr := range r.requests {
		rr.err = err
		close(rr.recv)
	}
	r.requests = make(map[uint64]*requestResponse)
}

// Connection is an authenticated SMB2 connection to a single server. It is
// safe for concurrent use; every in-flight request is correlated by message
// id in the receiver loop.
type Connection struct {
	opts       Options
	conn       net.Conn
	clientGuid []byte

	outstandingRequests *outstandingRequests

	m         sync.Mutex // Guards messageID and credits
	messageID uint64
	credits   uint16

	err     error
	errLock sync.RWMutex

	wdone chan struct{}
	rdone chan struct{}
	write chan []byte
	werr  chan error

	closing atomic.Bool
	closed  atomic.Bool

	// Negotiated state, written during NegotiateProtocol/SessionSetup and
	// read-only afterwards.
	dialect             uint16
	securityMode        uint16
	capabilities        uint32
	supportsMultiCredit bool
	maxReadSize         uint32
	maxWriteSize        uint32
	maxTransactSize     uint32

	isSigningRequired atomic.Bool
	isAuthenticated   bool
	sessionID         uint64
	sessionFlags      uint16
	sessionKey        []byte
	signingKey        []byte

	treeLock sync.Mutex
	trees    map[string]uint32
}

// Dial connects to an SMB server, negotiates a dialect and authenticates the
// session. The returned connection is ready for Mount.
func Dial(opts Options) (c *Connection, err error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("missing required host")
	}
	if opts.Port < 1 || opts.Port > 65535 {
		opts.Port = 445
	}
	if opts.Initiator == nil {
		return nil, fmt.Errorf("missing authentication initiator")
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 30 * time.Second
	}

	c = &Connection{
		opts:                opts,
		clientGuid:          make([]byte, 16),
		outstandingRequests: newOutstandingRequests(),
		credits:             1,
		wdone:               make(chan struct{}, 1),
		rdone:               make(chan struct{}, 1),
		write:               make(chan []byte, 1),
		werr:                make(chan error, 1),
		trees:               make(map[string]uint32),
	}
	c.isSigningRequired.Store(opts.RequireMessageSigning)

	guid, err := uuid.New().MarshalBinary()
	if err != nil {
		return nil, err
	}
	c.clientGuid = guid

	address := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	if opts.ProxyDialer != nil {
		c.conn, err = opts.ProxyDialer.Dial("tcp", address)
	} else {
		c.conn, err = net.DialTimeout("tcp", address, opts.DialTimeout)
	}
	if err != nil {
		log.Errorln(err)
		return nil, &ConnectError{Address: address, Err: err}
	}

	go c.runSender()
	go c.runReceiver()

	log.Debugln("Negotiating protocol")
	err = c.negotiateProtocol()
	if err != nil {
		c.teardown()
		return nil, err
	}

	log.Debugln("Setting up session")
	err = c.sessionSetup()
	if err != nil {
		c.teardown()
		return nil, err
	}

	return c, nil
}

// Dialect returns the negotiated SMB dialect revision.
func (c *Connection) Dialect() uint16 {
	return c.dialect
}

// IsSigningRequired reports whether the session signs its messages.
func (c *Connection) IsSigningRequired() bool {
	return c.isSigningRequired.Load()
}

// IsAuthenticated reports whether session setup completed successfully.
func (c *Connection) IsAuthenticated() bool {
	return c.isAuthenticated
}

// SessionKey exposes the authenticated session key for callers deriving
// further key material.
func (c *Connection) SessionKey() []byte {
	return c.sessionKey
}

func (c *Connection) getErr() error {
	c.errLock.RLock()
	defer c.errLock.RUnlock()
	return c.err
}

func (c *Connection) setErr(err error) {
	c.errLock.Lock()
	defer c.errLock.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Close logs off the session, disconnects any remaining trees and tears down
// the TCP connection. It is idempotent.
func (c *Connection) Close() {
	if c.closing.Swap(true) {
		return
	}
	log.Debugln("Closing connection")
	c.treeLock.Lock()
	trees := make(map[string]uint32, len(c.trees))
	for share, treeID := range c.trees {
		trees[share] = treeID
	}
	c.trees = make(map[string]uint32)
	c.treeLock.Unlock()
	for share, treeID := range trees {
		if err := c.treeDisconnect(treeID); err != nil {
			log.Debugf("Tree disconnect of (%s) failed: %v", share, err)
		}
	}
	if c.isAuthenticated {
		if err := c.logoff(); err != nil {
			log.Debugf("Logoff failed: %v", err)
		}
	}
	c.teardown()
}

func (c *Connection) teardown() {
	c.closed.Store(true)
	close(c.wdone)
	c.conn.Close()
	// The receiver loop unblocks on the closed socket and drains the
	// outstanding map itself.
}

func (c *Connection) runSender() {
	for {
		select {
		case <-c.wdone:
			return
		case pkt := <-c.write:
			_, err := c.conn.Write(pkt)
			c.werr <- err
		}
	}
}

// readPacket reads one NetBIOS-framed SMB2 message off the wire.
func (c *Connection) readPacket() (packet []byte, err error) {
	var size uint32
	if err = binary.Read(c.conn, binary.BigEndian, &size); err != nil {
		return
	}
	if size > maxFrameSize {
		return nil, fmt.Errorf("invalid NetBIOS session message size: 0x%08x", size)
	}
	packet = make([]byte, size)
	_, err = io.ReadFull(c.conn, packet)
	return
}

func (c *Connection) runReceiver() {
	var err error
	for {
		var pkt []byte
		pkt, err = c.readPacket()
		if err != nil {
			break
		}
		if len(pkt) < 64 || string(pkt[:4]) != ProtocolSmb2 {
			log.Debugln("Skipping non-SMB2 packet")
			continue
		}

		status := binary.LittleEndian.Uint32(pkt[8:12])
		flags := binary.LittleEndian.Uint32(pkt[16:20])
		msgID := binary.LittleEndian.Uint64(pkt[24:32])

		if status == StatusPending && (flags&SMB2_FLAGS_ASYNC_COMMAND) == SMB2_FLAGS_ASYNC_COMMAND {
			// Interim response, keep the request outstanding and wait for
			// the real reply under the same message id.
			if _, ok := c.outstandingRequests.get(msgID); !ok {
				log.Debugf("Pending response for unknown message id %d", msgID)
			}
			continue
		}

		rr, ok := c.outstandingRequests.pop(msgID)
		if !ok {
			log.Debugf("Response for unknown message id %d", msgID)
			continue
		}

		// Interim pending responses are sent unsigned.
		if c.signingKey != nil && status != StatusPending {
			if (flags & SMB2_FLAGS_SIGNED) == SMB2_FLAGS_SIGNED {
				if !c.verify(pkt) {
					rr.err = &ProtocolError{Msg: "response signature verification failed"}
					close(rr.recv)
					continue
				}
			} else if c.isSigningRequired.Load() {
				rr.err = &ProtocolError{Msg: "unsigned response on a session requiring signing"}
				close(rr.recv)
				continue
			}
		}

		rr.recv <- pkt
	}

	// The socket is gone. Fail everything still in flight so waiters wake up.
	if c.closed.Load() {
		err = ErrClosed
	} else {
		c.setErr(err)
	}
	c.outstandingRequests.shutdown(err)
	close(c.rdone)
}

// makeRequestResponse registers a serialized request in the outstanding map,
// assigning it the next message id and signing it if the session requires
// signatures. buf is modified in place.
func (c *Connection) makeRequestResponse(buf []byte) (rr *requestResponse, err error) {
	creditCharge := binary.LittleEndian.Uint16(buf[6:8])

	c.m.Lock()
	messageID := c.messageID
	c.messageID += uint64(creditCharge)
	c.m.Unlock()

	binary.LittleEndian.PutUint64(buf[24:32], messageID)

	if c.isSigningRequired.Load() && c.signingKey != nil {
		sessionID := binary.LittleEndian.Uint64(buf[40:48])
		if sessionID != 0 {
			if err = c.sign(buf); err != nil {
				log.Errorln(err)
				return
			}
		}
	}

	rr = &requestResponse{
		msgID:        messageID,
		creditCharge: creditCharge,
		pkt:          buf,
		recv:         make(chan []byte, 1),
	}
	c.outstandingRequests.set(messageID, rr)
	return
}

func (c *Connection) send(req interface{}) (rr *requestResponse, err error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err = c.getErr(); err != nil {
		return nil, err
	}

	buf, err := encoder.Marshal(req)
	if err != nil {
		log.Errorln(err)
		return nil, &ProtocolError{Msg: "failed to serialize request", Err: err}
	}
	if len(buf) > maxFrameSize {
		return nil, &ProtocolError{Msg: "request exceeds maximum frame size"}
	}

	rr, err = c.makeRequestResponse(buf)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, 4+len(buf))
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(buf)))
	frame = append(frame, buf...)

	select {
	case c.write <- frame:
		// The sender may have exited between the enqueue and servicing
		// the frame, in which case werr never fires.
		select {
		case err = <-c.werr:
			if err != nil {
				c.outstandingRequests.pop(rr.msgID)
				c.setErr(err)
				return nil, err
			}
		case <-c.wdone:
			c.outstandingRequests.pop(rr.msgID)
			return nil, ErrClosed
		}
	case <-c.wdone:
		c.outstandingRequests.pop(rr.msgID)
		return nil, ErrClosed
	}
	return rr, nil
}

// recv waits for the response matching rr. A zero timeout waits until the
// connection fails, which is what change-notify requests want.
func (c *Connection) recv(rr *requestResponse, timeout time.Duration) (buf []byte, err error) {
	if rr == nil {
		return nil, fmt.Errorf("nil request handle")
	}

	var expiry <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expiry = t.C
	}

	select {
	case buf, ok := <-rr.recv:
		if !ok {
			return nil, rr.err
		}
		return buf, nil
	case <-expiry:
		c.outstandingRequests.pop(rr.msgID)
		return nil, &TimeoutError{}
	}
}

// sendrecv performs one round trip with the connection's request timeout.
func (c *Connection) sendrecv(req interface{}) (buf []byte, err error) {
	rr, err := c.send(req)
	if err != nil {
		return nil, err
	}
	return c.recv(rr, c.opts.RequestTimeout)
}

func (c *Connection) grantCredits(hdr *Header) {
	if c.supportsMultiCredit {
		hdr.Credits = 127
	} else {
		hdr.CreditCharge = 1
	}
}
