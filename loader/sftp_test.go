package loader

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSFTPLoader_FilenamePatternMatching(t *testing.T) {
	l := &SFTPLoader{FilenamePattern: "*.txt"}
	assert.True(t, l.matches("a.txt"))
	assert.False(t, l.matches("b.log"))
	assert.True(t, l.matches("c.txt"))

	l2 := &SFTPLoader{}
	assert.True(t, l2.matches("anything.bin"))
}

func TestChunkedReader_NeverExceedsChunkSize(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 5*1024)
	cr := &chunkedReader{r: bytes.NewReader(data), size: 512}

	var total int
	buf := make([]byte, 4096) // caller buffer larger than chunk size
	for {
		n, err := cr.Read(buf)
		if n > 0 {
			assert.LessOrEqual(t, n, 512)
			total += n
		}
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, len(data), total)
}
