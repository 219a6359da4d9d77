package emitter

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogEmitter_Emit(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(zerolog.New(&buf))

	report := makeReport("sg-0abc",
		found("ec2", "i-001"),
		found("eni"),
		failed("rds"),
	)

	require.NoError(t, e.Emit(context.Background(), report))
	require.NoError(t, e.Close())

	out := buf.String()
	assert.Contains(t, out, `"message":"security group in use"`)
	assert.Contains(t, out, `"resources":["i-001"]`)
	assert.Contains(t, out, `"message":"lookup failed"`)
	assert.Contains(t, out, `"kind":"transient"`)
	assert.Contains(t, out, `"message":"scan complete"`)
	assert.Contains(t, out, `"errored":1`)
	assert.NotContains(t, out, `"provider":"eni"`)
}
