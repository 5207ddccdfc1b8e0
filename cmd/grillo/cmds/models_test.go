package cmds

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/grillo/pkg/gateway"
)

func TestFilterModels(t *testing.T) {
	models := []gateway.ModelDescriptor{
		gateway.ParseModelName("llama2"),
		gateway.ParseModelName("llama2:13b"),
		gateway.ParseModelName("mistral:7b"),
	}

	all, err := filterModels(models, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	llamas, err := filterModels(models, "llama*")
	require.NoError(t, err)
	require.Len(t, llamas, 2)

	tagged, err := filterModels(models, "*:7b")
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	require.Equal(t, "mistral", tagged[0].Name)
}

func TestPrintModelsMarksSelected(t *testing.T) {
	buf := &bytes.Buffer{}
	models := []gateway.ModelDescriptor{
		{Name: "llama2", Tag: "latest", Size: 3_800_000_000, ModifiedAt: time.Now().Add(-48 * time.Hour)},
		{Name: "mistral", Tag: "7b"},
	}
	require.NoError(t, printModels(buf, models, "mistral:7b"))

	out := buf.String()
	require.Contains(t, out, "llama2:latest")
	require.Contains(t, out, "3.8 GB")
	require.Contains(t, out, "2 days ago")
	require.Contains(t, out, "*  mistral:7b")
}
