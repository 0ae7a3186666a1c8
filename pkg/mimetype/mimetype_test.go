package mimetype

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carbonledger/evidenced/pkg/errkind"
)

func TestValidateAllowed(t *testing.T) {
	guard := NewGuard(nil)

	for _, mime := range DefaultAllowed {
		assert.NoError(t, guard.Validate(mime), mime)
	}
}

func TestValidateCaseInsensitive(t *testing.T) {
	guard := NewGuard(nil)
	assert.NoError(t, guard.Validate("Application/PDF"))
	assert.NoError(t, guard.Validate(" image/png "))
}

func TestValidateRejected(t *testing.T) {
	guard := NewGuard(nil)

	err := guard.Validate("application/x-msdownload")
	assert.True(t, errkind.Is(err, errkind.UnsupportedMime))
}

func TestCustomAllowList(t *testing.T) {
	guard := NewGuard([]string{"application/pdf"})

	assert.NoError(t, guard.Validate("application/pdf"))
	assert.Error(t, guard.Validate("image/png"))
}

func TestGuessFromFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":   "application/pdf",
		"IMAGE.PNG":    "image/png",
		"photo.jpeg":   "image/jpeg",
		"photo.jpg":    "image/jpeg",
		"data.csv":     "text/csv",
		"meta.json":    "application/json",
		"bundle.zip":   "application/zip",
		"notes.txt":    "text/plain",
		"unknown.webp": "",
		"noext":        "",
	}

	for name, want := range cases {
		assert.Equal(t, want, GuessFromFilename(name), name)
	}
}
