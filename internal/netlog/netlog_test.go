package netlog

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForIncludesComponentAndPID(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetJSONFormat()
	t.Cleanup(func() { SetOutput(os.Stdout) })

	ForConn("worker", "echo", 42).Info("connection established")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "worker", line["component"])
	require.Equal(t, "echo", line["server"])
	require.Equal(t, float64(42), line["conn_id"])
	require.Equal(t, strconv.Itoa(os.Getpid()), strconv.Itoa(int(line["pid"].(float64))))
}
