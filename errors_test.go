package tvio

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	require.Equal(t, CodeOK, CodeOf(nil))
	require.Equal(t, CodeNetwork, CodeOf(errors.New("connection reset")),
		"errors outside the taxonomy are network failures")

	for code := CodeNetwork; code <= CodeNoUpdate; code++ {
		wrapped := fmt.Errorf("handle 3: %w", code.Err())
		require.Equal(t, code, CodeOf(wrapped), code.String())
	}

	require.Equal(t, 0, int(CodeOK))
	require.Equal(t, 12, int(CodeNoUpdate))
	require.NoError(t, CodeOK.Err())
}
