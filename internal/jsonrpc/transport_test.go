// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLimitedLine(t *testing.T) {
	r := bufio.NewReaderSize(strings.NewReader("one\ntwo\r\n"), 16)

	line, tooLong, err := readLimitedLine(r, 64)
	require.NoError(t, err)
	assert.False(t, tooLong)
	assert.Equal(t, "one", string(line))

	line, tooLong, err = readLimitedLine(r, 64)
	require.NoError(t, err)
	assert.False(t, tooLong)
	assert.Equal(t, "two", string(line))

	_, _, err = readLimitedLine(r, 64)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadLimitedLineDiscardsOversized(t *testing.T) {
	long := strings.Repeat("x", 200)
	input := long + "\nshort\n"
	r := bufio.NewReaderSize(strings.NewReader(input), 16)

	line, tooLong, err := readLimitedLine(r, 64)
	require.NoError(t, err)
	assert.True(t, tooLong)
	assert.Nil(t, line)

	line, tooLong, err = readLimitedLine(r, 64)
	require.NoError(t, err)
	assert.False(t, tooLong)
	assert.Equal(t, "short", string(line))
}

func TestReadLimitedLineEOFWithoutNewline(t *testing.T) {
	r := bufio.NewReaderSize(strings.NewReader("tail"), 16)

	line, tooLong, err := readLimitedLine(r, 64)
	require.NoError(t, err)
	assert.False(t, tooLong)
	assert.Equal(t, "tail", string(line))
}

func TestStdioConnSkipsBlankAndOversized(t *testing.T) {
	long := strings.Repeat("y", 9*1024*1024)
	input := "\n" + long + "\n" + `{"jsonrpc":"2.0","method":"ok"}` + "\n"
	pr, pw := io.Pipe()
	go func() {
		io.WriteString(pw, input)
		pw.Close()
	}()

	c := newStdioConn(pr, nopWriteCloser{})
	msg, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"method":"ok"`)
}

func TestStdioConnWriteAppendsNewline(t *testing.T) {
	var sb strings.Builder
	c := &stdioConn{w: &sb}
	require.NoError(t, c.WriteMessage([]byte(`{"a":1}`)))
	require.NoError(t, c.WriteMessage([]byte(`{"b":2}`)))
	assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", sb.String())
}

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopWriteCloser) Close() error                { return nil }
