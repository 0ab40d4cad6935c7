package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_PlainText(t *testing.T) {
	result, err := Extract("notes.txt", []byte("Hello, world.\nSecond line."))
	require.NoError(t, err)

	assert.Equal(t, "Hello, world.\nSecond line.", result.Text)
	assert.Equal(t, "txt", result.FileType)
	assert.Len(t, result.ContentHash, 64)
	assert.Equal(t, 26, result.FileSize)
}

func TestExtract_Markdown(t *testing.T) {
	result, err := Extract("README.md", []byte("# Title\n\nSome body text."))
	require.NoError(t, err)
	assert.Equal(t, "md", result.FileType)
	assert.Contains(t, result.Text, "Some body text.")
}

func TestExtract_HTMLStripsChrome(t *testing.T) {
	html := `<html><head><title>Page</title><script>alert(1)</script></head>
		<body>
			<nav>Navigation links</nav>
			<p>Actual article content.</p>
			<footer>Copyright notice</footer>
		</body></html>`

	result, err := Extract("page.html", []byte(html))
	require.NoError(t, err)

	assert.Equal(t, "html", result.FileType)
	assert.Contains(t, result.Text, "Actual article content.")
	assert.NotContains(t, result.Text, "alert(1)")
	assert.NotContains(t, result.Text, "Navigation links")
	assert.NotContains(t, result.Text, "Copyright notice")
}

func TestExtract_UnsupportedExtension(t *testing.T) {
	_, err := Extract("report.pdf", []byte("%PDF-1.4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestExtract_InvalidUTF8(t *testing.T) {
	_, err := Extract("broken.txt", []byte{0xff, 0xfe, 0x00})
	assert.Error(t, err)
}

func TestExtract_EmptyDocument(t *testing.T) {
	_, err := Extract("empty.txt", []byte("   \n\t  "))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no extractable text")
}

func TestExtract_SameContentSameHash(t *testing.T) {
	first, err := Extract("a.txt", []byte("identical content"))
	require.NoError(t, err)
	second, err := Extract("b.txt", []byte("identical content"))
	require.NoError(t, err)
	assert.Equal(t, first.ContentHash, second.ContentHash)
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("doc.txt"))
	assert.True(t, IsSupported("doc.MD"))
	assert.True(t, IsSupported("doc.html"))
	assert.True(t, IsSupported("doc.htm"))
	assert.False(t, IsSupported("doc.pdf"))
	assert.False(t, IsSupported("doc"))
}
