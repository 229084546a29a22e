package pktline

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderReadUntilDelims(t *testing.T) {
	buf := &bytes.Buffer{}
	_, _ = WritePacketString(buf, "cap1\n")
	_ = WriteDelim(buf)
	_, _ = WritePacketString(buf, "cap2\n")
	_ = WriteFlush(buf)

	r := NewReader(buf)
	r.SetDelims(Delim)

	lines, err := r.ReadUntilDelim()
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("cap1\n")}, lines)

	r.SetDelims(Flush)
	lines, err = r.ReadUntilDelim()
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("cap2\n")}, lines)
}

func TestScannerIteratesUntilFlush(t *testing.T) {
	buf := &bytes.Buffer{}
	_, _ = WritePacketString(buf, "refs/heads/main\n")
	_, _ = WritePacketString(buf, "refs/heads/dev\n")
	_ = WriteFlush(buf)

	sc := NewScanner(buf)
	var got []string
	for sc.Scan() {
		if sc.Status() == Flush {
			break
		}
		got = append(got, sc.Text())
	}
	require.NoError(t, sc.Err())
	require.Equal(t, []string{"refs/heads/main\n", "refs/heads/dev\n"}, got)
}
