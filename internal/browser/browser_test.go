package browser

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaunchUnknownEngine(t *testing.T) {
	d, err := Launch(context.Background(), Options{Engine: "netscape"})

	assert.Nil(t, d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEngine))
	assert.Contains(t, err.Error(), "netscape")
}

func TestWrapErr(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		closed bool
	}{
		{name: "target closed", err: errors.New("Target closed"), closed: true},
		{name: "page closed", err: errors.New("Target page, context or browser has been closed"), closed: true},
		{name: "disconnected", err: errors.New("browser has disconnected"), closed: true},
		{name: "cancelled cdp call", err: context.Canceled, closed: true},
		{name: "other", err: errors.New("element is not visible"), closed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapErr(tt.err, "click")
			require.Error(t, err)
			assert.Equal(t, tt.closed, errors.Is(err, ErrSessionClosed))
			assert.Contains(t, err.Error(), "click")
		})
	}

	assert.NoError(t, wrapErr(nil, "click"))
}

func TestExtensionArgs(t *testing.T) {
	assert.Nil(t, extensionArgs(""))
	assert.Equal(t, []string{
		"--disable-extensions-except=/data/ublock",
		"--load-extension=/data/ublock",
	}, extensionArgs("/data/ublock"))
}
