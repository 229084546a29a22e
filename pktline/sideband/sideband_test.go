package sideband

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDemuxerDecode(t *testing.T) {
	expected := []byte("abcdefghijklmnopqrstuvwxyz")

	buf := &bytes.Buffer{}
	m := NewMuxer(Sideband64k, buf)
	_, err := m.WriteChannel(PackData, expected[0:8])
	require.NoError(t, err)
	_, err = m.WriteChannel(ProgressMessage, []byte("FOO\n"))
	require.NoError(t, err)
	_, err = m.WriteChannel(PackData, expected[8:16])
	require.NoError(t, err)
	_, err = m.WriteChannel(PackData, expected[16:26])
	require.NoError(t, err)

	content := make([]byte, 26)
	d := NewDemuxer(Sideband64k, buf)
	n, err := io.ReadFull(d, content)
	require.NoError(t, err)
	require.Equal(t, 26, n)
	require.Equal(t, expected, content)
}

func TestDemuxerDecodeWithProgress(t *testing.T) {
	expected := []byte("abcdefghijklmnopqrstuvwxyz")

	input := &bytes.Buffer{}
	m := NewMuxer(Sideband64k, input)
	_, _ = m.WriteChannel(PackData, expected[0:8])
	_, _ = m.WriteChannel(ProgressMessage, []byte("FOO\n"))
	_, _ = m.WriteChannel(PackData, expected[8:26])

	output := &bytes.Buffer{}
	d := NewDemuxer(Sideband64k, input)
	d.Progress = output

	content := make([]byte, 26)
	n, err := io.ReadFull(d, content)
	require.NoError(t, err)
	require.Equal(t, 26, n)
	require.Equal(t, expected, content)
	require.Equal(t, "FOO\n", output.String())
}

func TestDemuxerDecodeWithErrorMessage(t *testing.T) {
	expected := []byte("abcdefghijklmnopqrstuvwxyz")

	buf := &bytes.Buffer{}
	m := NewMuxer(Sideband64k, buf)
	_, _ = m.WriteChannel(PackData, expected[0:8])
	_, _ = m.WriteChannel(ErrorMessage, []byte("FOO\n"))
	_, _ = m.WriteChannel(PackData, expected[8:26])

	content := make([]byte, 26)
	d := NewDemuxer(Sideband64k, buf)
	n, err := io.ReadFull(d, content)
	require.EqualError(t, err, "unexpected error: FOO\n")
	require.Equal(t, 8, n)
}

func TestDemuxerErrMaxPackedExceeded(t *testing.T) {
	buf := &bytes.Buffer{}
	m := NewMuxer(Sideband, buf)
	_, _ = m.WriteChannel(PackData, bytes.Repeat([]byte{'0'}, MaxPackedSize+1))

	content := make([]byte, 13)
	d := NewDemuxer(Sideband, buf)
	n, err := io.ReadFull(d, content)
	require.ErrorIs(t, err, ErrMaxPackedExceeded)
	require.Equal(t, 0, n)
}

func TestMuxerWriteSplitsIntoChunks(t *testing.T) {
	buf := &bytes.Buffer{}
	m := NewMuxer(Sideband, buf)

	n, err := m.Write(bytes.Repeat([]byte{'F'}, (MaxPackedSize-1)*2))
	require.NoError(t, err)
	require.Equal(t, 1998, n)
	require.Equal(t, 2008, buf.Len())
}

func TestMuxerWriteChannelMultipleChannels(t *testing.T) {
	buf := &bytes.Buffer{}
	m := NewMuxer(Sideband, buf)

	n, err := m.WriteChannel(PackData, bytes.Repeat([]byte{'D'}, 4))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	n, err = m.WriteChannel(ProgressMessage, bytes.Repeat([]byte{'P'}, 4))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	n, err = m.WriteChannel(PackData, bytes.Repeat([]byte{'D'}, 4))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	require.Equal(t, 27, buf.Len())
	require.Equal(t, "0009\x01DDDD0009\x02PPPP0009\x01DDDD", buf.String())
}
