/*
Copyright 2024 Warpgate Labs.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package sftp implements the SFTP Inspector: a transparent, policy
// enforcing pass-through for the SFTP subsystem channel, parsing packets
// on draft-ietf-secsh-filexfer-02/03 wire format in both directions.
package sftp

import (
	"encoding/binary"
	"io"

	"github.com/gravitational/trace"
)

// Packet type bytes, per the SFTP wire format.
const (
	typeInit     = 1
	typeVersion  = 2
	typeOpen     = 3
	typeClose    = 4
	typeRead     = 5
	typeWrite    = 6
	typeStatus   = 101
	typeHandle   = 102
	typeData     = 103
)

// pflags bits carried in an OPEN request.
const (
	pflagRead   = 0x01
	pflagWrite  = 0x02
	pflagAppend = 0x04
	pflagCreat  = 0x08
	pflagTrunc  = 0x10
	pflagExcl   = 0x20
)

// statusPermissionDenied is SSH_FX_PERMISSION_DENIED.
const statusPermissionDenied = 3

// maxPacketLength bounds a single SFTP packet to guard against a
// malformed length prefix driving an unbounded allocation.
const maxPacketLength = 256 * 1024

// ReadPacket reads one length-prefixed SFTP packet from r and returns its
// body (type byte, request id, and payload) without the length prefix.
func ReadPacket(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 || n > maxPacketLength {
		return nil, trace.BadParameter("sftp: invalid packet length %d", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WritePacket writes body to w with its length prefix.
func WritePacket(w io.Writer, body []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// packetReader is a small cursor over a packet body for sequential field
// decoding.
type packetReader struct {
	buf []byte
	pos int
}

func (p *packetReader) byte() (byte, bool) {
	if p.pos >= len(p.buf) {
		return 0, false
	}
	b := p.buf[p.pos]
	p.pos++
	return b, true
}

func (p *packetReader) uint32() (uint32, bool) {
	if p.pos+4 > len(p.buf) {
		return 0, false
	}
	v := binary.BigEndian.Uint32(p.buf[p.pos : p.pos+4])
	p.pos += 4
	return v, true
}

func (p *packetReader) uint64() (uint64, bool) {
	if p.pos+8 > len(p.buf) {
		return 0, false
	}
	v := binary.BigEndian.Uint64(p.buf[p.pos : p.pos+8])
	p.pos += 8
	return v, true
}

func (p *packetReader) str() (string, bool) {
	n, ok := p.uint32()
	if !ok || p.pos+int(n) > len(p.buf) {
		return "", false
	}
	s := string(p.buf[p.pos : p.pos+int(n)])
	p.pos += int(n)
	return s, true
}

// buildStatus synthesizes an SSH_FXP_STATUS packet body denying requestID
// with code.
func buildStatus(requestID uint32, code uint32, message string) []byte {
	buf := make([]byte, 0, 13+len(message)+4)
	buf = append(buf, typeStatus)
	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], requestID)
	buf = append(buf, idBuf[:]...)
	var codeBuf [4]byte
	binary.BigEndian.PutUint32(codeBuf[:], code)
	buf = append(buf, codeBuf[:]...)
	buf = appendString(buf, message)
	buf = appendString(buf, "en")
	return buf
}

func appendString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}
