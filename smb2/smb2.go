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

// Package smb2 implements a minimal SMB2 client: dialect negotiation, NTLMv2
// session setup, tree connect, file and directory operations, and directory
// change notification. One Connection multiplexes all in-flight requests over
// a single TCP stream, correlated by message id.
package smb2

import (
	"fmt"

	"github.com/jfjallid/golog"

	"github.com/nordfjell/smbclient/gss"
	"github.com/nordfjell/smbclient/smb2/encoder"
)

var log = golog.Get("github.com/nordfjell/smbclient/smb2")

const ProtocolSmb2 = "\xFESMB"

const (
	DialectSmb_2_0_2 uint16 = 0x0202
	DialectSmb_2_1   uint16 = 0x0210
	DialectSmb_3_0   uint16 = 0x0300
	DialectSmb_3_0_2 uint16 = 0x0302
)

const (
	CommandNegotiate uint16 = iota
	CommandSessionSetup
	CommandLogoff
	CommandTreeConnect
	CommandTreeDisconnect
	CommandCreate
	CommandClose
	CommandFlush
	CommandRead
	CommandWrite
	CommandLock
	CommandIOCtl
	CommandCancel
	CommandEcho
	CommandQueryDirectory
	CommandChangeNotify
	CommandQueryInfo
	CommandSetInfo
	CommandOplockBreak
)

// MS-SMB2 2.2.1.1 Flags
const (
	SMB2_FLAGS_SERVER_TO_REDIR    uint32 = 0x00000001
	SMB2_FLAGS_ASYNC_COMMAND      uint32 = 0x00000002
	SMB2_FLAGS_RELATED_OPERATIONS uint32 = 0x00000004
	SMB2_FLAGS_SIGNED             uint32 = 0x00000008
)

const (
	SecurityModeSigningDisabled uint16 = iota
	SecurityModeSigningEnabled
	SecurityModeSigningRequired
)

const (
	GlobalCapDFS          uint32 = 0x00000001
	GlobalCapLeasing      uint32 = 0x00000002
	GlobalCapLargeMTU     uint32 = 0x00000004
	GlobalCapMultiChannel uint32 = 0x00000008
	GlobalCapEncryption   uint32 = 0x00000040
)

const (
	OpLockLevelNone byte = 0x00
)

const (
	ImpersonationLevelAnonymous      uint32 = 0x00000000
	ImpersonationLevelIdentification uint32 = 0x00000001
	ImpersonationLevelImpersonation  uint32 = 0x00000002
)

// MS-SMB2 Section 2.2.6 Session setup flags
const (
	SessionFlagIsGuest     uint16 = 0x0001
	SessionFlagIsNull      uint16 = 0x0002
	SessionFlagEncryptData uint16 = 0x0004
)

// File access masks
const (
	FAccMaskFileReadData        uint32 = 0x00000001
	FAccMaskFileWriteData       uint32 = 0x00000002
	FAccMaskFileAppendData      uint32 = 0x00000004
	FAccMaskFileReadEA          uint32 = 0x00000008
	FAccMaskFileWriteEA         uint32 = 0x00000010
	FAccMaskFileExecute         uint32 = 0x00000020
	FAccMaskFileReadAttributes  uint32 = 0x00000080
	FAccMaskFileWriteAttributes uint32 = 0x00000100
	FAccMaskDelete              uint32 = 0x00010000
	FAccMaskReadControl         uint32 = 0x00020000
	FAccMaskSynchronize         uint32 = 0x00100000
)

// Directory access masks
const (
	DAccMaskFileListDirectory   uint32 = 0x00000001
	DAccMaskFileAddFile         uint32 = 0x00000002
	DAccMaskFileAddSubDirectory uint32 = 0x00000004
	DAccMaskFileTraverse        uint32 = 0x00000020
	DAccMaskFileDeleteChild     uint32 = 0x00000040
	DAccMaskFileReadAttributes  uint32 = 0x00000080
	DAccMaskDelete              uint32 = 0x00010000
	DAccMaskReadControl         uint32 = 0x00020000
	DAccMaskSynchronize         uint32 = 0x00100000
)

// File attributes
const (
	FileAttrReadonly     uint32 = 0x00000001
	FileAttrHidden       uint32 = 0x00000002
	FileAttrSystem       uint32 = 0x00000004
	FileAttrDirectory    uint32 = 0x00000010
	FileAttrArchive      uint32 = 0x00000020
	FileAttrNormal       uint32 = 0x00000080
	FileAttrReparsePoint uint32 = 0x00000400 // Junction
)

// Share access
const (
	FileShareRead   uint32 = 0x00000001
	FileShareWrite  uint32 = 0x00000002
	FileShareDelete uint32 = 0x00000004
)

// File create dispositions
const (
	FileSupersede   uint32 = iota // Replace the file if it exists, create otherwise.
	FileOpen                      // Open the file if it exists, fail otherwise.
	FileCreate                    // Create the file, fail if it already exists.
	FileOpenIf                    // Open the file if it exists, create otherwise.
	FileOverwrite                 // Overwrite the file if it exists, fail otherwise.
	FileOverwriteIf               // Overwrite the file if it exists, create otherwise.
)

// File create options
const (
	FileDirectoryFile    uint32 = 0x00000001
	FileWriteThrough     uint32 = 0x00000002
	FileSequentialOnly   uint32 = 0x00000004
	FileNonDirectoryFile uint32 = 0x00000040
	FileDeleteOnClose    uint32 = 0x00001000
)

// MS-FSCC Section 2.4 file information classes used by this client
const (
	FileBothDirectoryInformation byte = 0x03
	FileRenameInformation        byte = 0x0a
	FileDispositionInformation   byte = 0x0d
)

// MS-SMB2 Section 2.2.39 info type
const (
	OInfoFile byte = 0x01
)

// CHANGE_NOTIFY flags. MS-SMB2 Section 2.2.35.
const (
	WatchTree uint16 = 0x0001
)

// CHANGE_NOTIFY completion filter bits. MS-FSCC Section 2.6.
const (
	FileNotifyChangeFileName   uint32 = 0x00000001
	FileNotifyChangeDirName    uint32 = 0x00000002
	FileNotifyChangeAttributes uint32 = 0x00000004
	FileNotifyChangeSize       uint32 = 0x00000008
	FileNotifyChangeLastWrite  uint32 = 0x00000010
	FileNotifyChangeLastAccess uint32 = 0x00000020
	FileNotifyChangeCreation   uint32 = 0x00000040
	FileNotifyChangeSecurity   uint32 = 0x00000100
)

// FILE_NOTIFY_INFORMATION actions. MS-FSCC Section 2.7.1.
const (
	FileActionAdded          uint32 = 0x00000001
	FileActionRemoved        uint32 = 0x00000002
	FileActionModified       uint32 = 0x00000003
	FileActionRenamedOldName uint32 = 0x00000004
	FileActionRenamedNewName uint32 = 0x00000005
)

type Header struct { // 64 bytes
	ProtocolID    []byte `smb:"fixed:4"`
	StructureSize uint16
	CreditCharge  uint16
	Status        uint32
	Command       uint16
	Credits       uint16
	Flags         uint32
	NextCommand   uint32
	MessageID     uint64
	Reserved      uint32 // Async responses replace Reserved and TreeID with an AsyncID
	TreeID        uint32
	SessionID     uint64
	Signature     []byte `smb:"fixed:16"`
}

type NegotiateReq struct {
	Header
	StructureSize          uint16
	DialectCount           uint16 `smb:"count:Dialects"`
	SecurityMode           uint16
	Reserved               uint16
	Capabilities           uint32
	ClientGuid             []byte `smb:"fixed:16"`
	NegotiateContextOffset uint32
	NegotiateContextCount  uint16
	Reserved2              uint16
	Dialects               []uint16
}

type NegotiateRes struct {
	Header
	StructureSize          uint16
	SecurityMode           uint16
	DialectRevision        uint16
	NegotiateContextCount  uint16
	ServerGuid             []byte `smb:"fixed:16"`
	Capabilities           uint32
	MaxTransactSize        uint32
	MaxReadSize            uint32
	MaxWriteSize           uint32
	SystemTime             uint64
	ServerStartTime        uint64
	SecurityBufferOffset   uint16 `smb:"offset:SecurityBlob"`
	SecurityBufferLength   uint16 `smb:"len:SecurityBlob"`
	NegotiateContextOffset uint32
	SecurityBlob           *gss.NegTokenInit
}

type SessionSetup1Req struct {
	Header
	StructureSize        uint16
	Flags                byte
	SecurityMode         byte
	Capabilities         uint32
	Channel              uint32
	SecurityBufferOffset uint16 `smb:"offset:SecurityBlob"`
	SecurityBufferLength uint16 `smb:"len:SecurityBlob"`
	PreviousSessionID    uint64
	SecurityBlob         *gss.NegTokenInit
}

type SessionSetup1Res struct {
	Header
	StructureSize        uint16
	Flags                uint16
	SecurityBufferOffset uint16 `smb:"offset:SecurityBlob"`
	SecurityBufferLength uint16 `smb:"len:SecurityBlob"`
	SecurityBlob         *gss.NegTokenResp
}

type SessionSetup2Req struct {
	Header
	StructureSize        uint16
	Flags                byte
	SecurityMode         byte
	Capabilities         uint32
	Channel              uint32
	SecurityBufferOffset uint16 `smb:"offset:SecurityBlob"`
	SecurityBufferLength uint16 `smb:"len:SecurityBlob"`
	PreviousSessionID    uint64
	SecurityBlob         *gss.NegTokenResp
}

type SessionSetup2Res struct {
	Header
	StructureSize        uint16
	Flags                uint16
	SecurityBufferOffset uint16 `smb:"offset:SecurityBlob"`
	SecurityBufferLength uint16 `smb:"len:SecurityBlob"`
	SecurityBlob         *gss.NegTokenResp
}

type LogoffReq struct {
	Header
	StructureSize uint16
	Reserved      uint16
}

type LogoffRes struct {
	Header
	StructureSize uint16
	Reserved      uint16
}

type TreeConnectReq struct {
	Header
	StructureSize uint16
	Reserved      uint16
	PathOffset    uint16 `smb:"offset:Path"`
	PathLength    uint16 `smb:"len:Path"`
	Path          []byte
}

type TreeConnectRes struct {
	Header
	StructureSize uint16
	ShareType     byte
	Reserved      byte
	ShareFlags    uint32
	Capabilities  uint32
	MaximalAccess uint32
}

type TreeDisconnectReq struct {
	Header
	StructureSize uint16
	Reserved      uint16
}

type TreeDisconnectRes struct {
	Header
	StructureSize uint16
	Reserved      uint16
}

type CreateReq struct {
	Header
	StructureSize        uint16 // Must always be 57 regardless of Buffer size
	SecurityFlags        byte   // Must always be 0
	RequestedOplockLevel byte
	ImpersonationLevel   uint32
	SmbCreateFlags       uint64 // Must always be 0
	Reserved             uint64 // Must always be 0
	DesiredAccess        uint32
	FileAttributes       uint32
	ShareAccess          uint32
	CreateDisposition    uint32
	CreateOptions        uint32
	NameOffset           uint16
	NameLength           uint16
	CreateContextsOffset uint32
	CreateContextsLength uint32
	Buffer               []byte // Min length is 1
}

type CreateRes struct {
	Header
	StructureSize        uint16 // Must be 89
	OplockLevel          byte
	Flags                byte
	CreateAction         uint32
	CreationTime         uint64 // FILETIME
	LastAccessTime       uint64
	LastWriteTime        uint64
	ChangeTime           uint64
	AllocationSize       uint64
	EndOfFile            uint64
	FileAttributes       uint32
	Reserved2            uint32
	FileId               []byte `smb:"fixed:16"`
	CreateContextsOffset uint32 `smb:"offset:Buffer"`
	CreateContextsLength uint32 `smb:"len:Buffer"`
	Buffer               []byte
}

type CloseReq struct {
	Header
	StructureSize uint16 // Must be 24
	Flags         uint16
	Reserved      uint32
	FileId        []byte `smb:"fixed:16"`
}

type CloseRes struct {
	Header
	StructureSize  uint16 // Must be 60
	Flags          uint16
	Reserved       uint32
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64
	ChangeTime     uint64
	AllocationSize uint64
	EndOfFile      uint64
	FileAttributes uint32
}

type QueryDirectoryReq struct {
	Header
	StructureSize        uint16 // Must always be 33 regardless of Buffer size
	FileInformationClass byte
	Flags                byte
	FileIndex            uint32
	FileID               []byte `smb:"fixed:16"`
	FileNameOffset       uint16 `smb:"offset:Buffer"`
	FileNameLength       uint16 `smb:"len:Buffer"`
	OutputBufferLength   uint32
	Buffer               []byte
}

type QueryDirectoryRes struct {
	Header
	StructureSize      uint16 // Must always be 9
	OutputBufferOffset uint16 `smb:"offset:Buffer"`
	OutputBufferLength uint32 `smb:"len:Buffer"`
	Buffer             []byte
}

type FileBothDirectoryInformationEntry struct {
	NextEntryOffset uint32
	FileIndex       uint32
	CreationTime    uint64
	LastAccessTime  uint64
	LastWriteTime   uint64
	ChangeTime      uint64
	EndOfFile       uint64
	AllocationSize  uint64
	FileAttributes  uint32
	FileNameLength  uint32 `smb:"len:FileName"`
	EaSize          uint32
	ShortNameLength byte
	Reserved        byte
	ShortName       []byte `smb:"fixed:24"`
	FileName        []byte
}

type ReadReq struct {
	Header
	StructureSize         uint16 // Must always be 49 regardless of Buffer size
	Padding               byte
	Flags                 byte
	Length                uint32
	Offset                uint64
	FileId                []byte `smb:"fixed:16"`
	MinimumCount          uint32
	Channel               uint32
	RemainingBytes        uint32
	ReadChannelInfoOffset uint16
	ReadChannelInfoLength uint16
	Buffer                []byte // 1 byte on requests
}

type ReadRes struct {
	Header
	StructureSize uint16 // Must be 17
	DataOffset    byte   `smb:"offset:Buffer"`
	Reserved      byte
	DataLength    uint32 `smb:"len:Buffer"`
	DataRemaining uint32
	Reserved2     uint32
	Buffer        []byte
}

type WriteReq struct {
	Header
	StructureSize          uint16 // Must always be 49 regardless of Buffer size
	DataOffset             uint16 `smb:"offset:Buffer"`
	Length                 uint32 `smb:"len:Buffer"`
	Offset                 uint64
	FileId                 []byte `smb:"fixed:16"`
	Channel                uint32
	RemainingBytes         uint32
	WriteChannelInfoOffset uint16
	WriteChannelInfoLength uint16
	Flags                  uint32
	Buffer                 []byte
}

type WriteRes struct {
	Header
	StructureSize          uint16 // Must be 17
	Reserved               uint16
	Count                  uint32 // Bytes written
	Remaining              uint32
	WriteChannelInfoOffset uint16
	WriteChannelInfoLength uint16
}

type SetInfoReq struct {
	Header
	StructureSize         uint16 // Must always be 33 regardless of Buffer size
	InfoType              byte
	FileInfoClass         byte
	BufferLength          uint32 `smb:"len:Buffer"`
	BufferOffset          uint16 `smb:"offset:Buffer"`
	Reserved              uint16
	AdditionalInformation uint32
	FileId                []byte `smb:"fixed:16"`
	Buffer                []byte
}

type SetInfoRes struct {
	Header
	StructureSize uint16 // Must be 2
}

type ChangeNotifyReq struct {
	Header
	StructureSize      uint16 // Must be 32
	Flags              uint16
	OutputBufferLength uint32
	FileId             []byte `smb:"fixed:16"`
	CompletionFilter   uint32
	Reserved           uint32
}

type ChangeNotifyRes struct {
	Header
	StructureSize      uint16 // Must be 9
	OutputBufferOffset uint16 `smb:"offset:Buffer"`
	OutputBufferLength uint32 `smb:"len:Buffer"`
	Buffer             []byte
}

type FileNotifyInformationEntry struct {
	NextEntryOffset uint32
	Action          uint32
	FileNameLength  uint32 `smb:"len:FileName"`
	FileName        []byte
}

func newHeader(command uint16) Header {
	return Header{
		ProtocolID:    []byte(ProtocolSmb2),
		StructureSize: 64,
		CreditCharge:  1,
		Command:       command,
		Credits:       1,
		Signature:     make([]byte, 16),
	}
}

func (c *Connection) newNegotiateReq() NegotiateReq {
	dialects := []uint16{DialectSmb_2_1, DialectSmb_3_0_2}

	req := NegotiateReq{
		Header:        newHeader(CommandNegotiate),
		StructureSize: 36,
		DialectCount:  uint16(len(dialects)),
		SecurityMode:  SecurityModeSigningEnabled,
		Capabilities:  GlobalCapLargeMTU,
		ClientGuid:    c.clientGuid,
		Dialects:      dialects,
	}
	if c.isSigningRequired.Load() {
		req.SecurityMode = SecurityModeSigningRequired
	}
	return req
}

func (c *Connection) newSessionSetup1Req(token *gss.NegTokenInit) SessionSetup1Req {
	header := newHeader(CommandSessionSetup)
	header.SessionID = c.sessionID

	req := SessionSetup1Req{
		Header:               header,
		StructureSize:        25,
		SecurityBufferOffset: 88,
		SecurityBlob:         token,
	}
	if c.isSigningRequired.Load() {
		req.SecurityMode = byte(SecurityModeSigningRequired)
	} else {
		req.SecurityMode = byte(SecurityModeSigningEnabled)
	}
	return req
}

func (c *Connection) newSessionSetup2Req(token *gss.NegTokenResp) SessionSetup2Req {
	header := newHeader(CommandSessionSetup)
	header.SessionID = c.sessionID
	header.Credits = 127

	req := SessionSetup2Req{
		Header:               header,
		StructureSize:        25,
		SecurityBufferOffset: 88,
		SecurityBlob:         token,
	}
	if c.isSigningRequired.Load() {
		req.SecurityMode = byte(SecurityModeSigningRequired)
	} else {
		req.SecurityMode = byte(SecurityModeSigningEnabled)
	}
	return req
}

func (c *Connection) newLogoffReq() LogoffReq {
	header := newHeader(CommandLogoff)
	header.SessionID = c.sessionID
	return LogoffReq{
		Header:        header,
		StructureSize: 4,
	}
}

func (c *Connection) newTreeConnectReq(share string) TreeConnectReq {
	header := newHeader(CommandTreeConnect)
	header.SessionID = c.sessionID

	path := fmt.Sprintf("\\\\%s\\%s", c.opts.Host, share)
	return TreeConnectReq{
		Header:        header,
		StructureSize: 9,
		Path:          encoder.ToUnicode(path),
	}
}

func (c *Connection) newTreeDisconnectReq(treeID uint32) TreeDisconnectReq {
	header := newHeader(CommandTreeDisconnect)
	header.SessionID = c.sessionID
	header.TreeID = treeID
	return TreeDisconnectReq{
		Header:        header,
		StructureSize: 4,
	}
}

func (s *Share) newCreateReq(name string,
	desiredAccess uint32,
	fileAttr uint32,
	shareAccess uint32,
	createDisp uint32,
	createOpts uint32) CreateReq {

	header := newHeader(CommandCreate)
	header.SessionID = s.conn.sessionID
	header.TreeID = s.treeID
	s.conn.grantCredits(&header)

	var buf []byte
	var nameLen uint16
	if len(name) > 0 {
		uname := encoder.ToUnicode(name)
		nameLen = uint16(len(uname))
		buf = uname
	} else {
		// The name buffer must hold at least one byte even when the name is
		// empty (an open of the share root).
		buf = make([]byte, 1)
	}

	return CreateReq{
		Header:               header,
		StructureSize:        57,
		RequestedOplockLevel: OpLockLevelNone,
		ImpersonationLevel:   ImpersonationLevelImpersonation,
		DesiredAccess:        desiredAccess,
		FileAttributes:       fileAttr,
		ShareAccess:          shareAccess,
		CreateDisposition:    createDisp,
		CreateOptions:        createOpts,
		NameOffset:           120, // Fixed offset from the header start to the name buffer
		NameLength:           nameLen,
		Buffer:               buf,
	}
}

func (s *Share) newCloseReq(fileID []byte) CloseReq {
	header := newHeader(CommandClose)
	header.SessionID = s.conn.sessionID
	header.TreeID = s.treeID
	return CloseReq{
		Header:        header,
		StructureSize: 24,
		FileId:        fileID,
	}
}

func (s *Share) newQueryDirectoryReq(pattern string, fileID []byte, flags byte, outputBufferLength uint32) QueryDirectoryReq {
	header := newHeader(CommandQueryDirectory)
	// CreditCharge = (max(SendPayloadSize, ResponsePayloadSize) - 1) / 65536 + 1
	header.CreditCharge = uint16((outputBufferLength-1)/65536 + 1)
	header.SessionID = s.conn.sessionID
	header.TreeID = s.treeID
	s.conn.grantCredits(&header)

	if pattern == "" {
		// A 33-byte fixed structure size means the pattern buffer must hold
		// at least one byte; "*" is the protocol wildcard equivalent.
		pattern = "*"
	}

	return QueryDirectoryReq{
		Header:               header,
		StructureSize:        33,
		FileInformationClass: FileBothDirectoryInformation,
		Flags:                flags,
		FileID:               fileID,
		OutputBufferLength:   outputBufferLength,
		Buffer:               encoder.ToUnicode(pattern),
	}
}

func (s *Share) newReadReq(fileID []byte, length uint32, offset uint64) ReadReq {
	header := newHeader(CommandRead)
	header.CreditCharge = uint16((length-1)/65536 + 1)
	header.SessionID = s.conn.sessionID
	header.TreeID = s.treeID
	s.conn.grantCredits(&header)

	return ReadReq{
		Header:        header,
		StructureSize: 49,
		Length:        length,
		Offset:        offset,
		FileId:        fileID,
		MinimumCount:  1,
		Buffer:        make([]byte, 1),
	}
}

func (s *Share) newWriteReq(fileID []byte, offset uint64, data []byte) WriteReq {
	header := newHeader(CommandWrite)
	header.CreditCharge = uint16((len(data)-1)/65536 + 1)
	header.SessionID = s.conn.sessionID
	header.TreeID = s.treeID
	s.conn.grantCredits(&header)

	return WriteReq{
		Header:        header,
		StructureSize: 49,
		DataOffset:    0x70,
		Offset:        offset,
		FileId:        fileID,
		Buffer:        data,
	}
}

func (s *Share) newSetInfoReq(fileID []byte, infoClass byte, buffer []byte) SetInfoReq {
	header := newHeader(CommandSetInfo)
	header.SessionID = s.conn.sessionID
	header.TreeID = s.treeID
	s.conn.grantCredits(&header)

	return SetInfoReq{
		Header:        header,
		StructureSize: 33,
		InfoType:      OInfoFile,
		FileInfoClass: infoClass,
		FileId:        fileID,
		Buffer:        buffer,
	}
}

func (s *Share) newChangeNotifyReq(fileID []byte, recursive bool, filter uint32, outputBufferLength uint32) ChangeNotifyReq {
	header := newHeader(CommandChangeNotify)
	header.CreditCharge = uint16((outputBufferLength-1)/65536 + 1)
	header.SessionID = s.conn.sessionID
	header.TreeID = s.treeID
	s.conn.grantCredits(&header)

	req := ChangeNotifyReq{
		Header:             header,
		StructureSize:      32,
		OutputBufferLength: outputBufferLength,
		FileId:             fileID,
		CompletionFilter:   filter,
	}
	if recursive {
		req.Flags = WatchTree
	}
	return req
}
