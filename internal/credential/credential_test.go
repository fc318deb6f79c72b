package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("literal wins", func(t *testing.T) {
		t.Setenv("NEWSAGENT_TEST_KEY", "from-env")
		v, err := Resolve(ctx, Source{Value: "literal", Env: []string{"NEWSAGENT_TEST_KEY"}})
		require.NoError(t, err)
		require.Equal(t, "literal", v)
	})

	t.Run("first set env", func(t *testing.T) {
		t.Setenv("NEWSAGENT_TEST_A", "")
		t.Setenv("NEWSAGENT_TEST_B", " b \n")
		v, err := Resolve(ctx, Source{Env: []string{"", "NEWSAGENT_TEST_A", "NEWSAGENT_TEST_B"}})
		require.NoError(t, err)
		require.Equal(t, "b", v)
	})

	t.Run("command", func(t *testing.T) {
		v, err := Resolve(ctx, Source{Env: []string{"NEWSAGENT_TEST_UNSET"}, Cmd: `echo "s3cr3t value"`})
		require.NoError(t, err)
		require.Equal(t, "s3cr3t value", v)
	})

	t.Run("nothing", func(t *testing.T) {
		v, err := Resolve(ctx, Source{Env: []string{"NEWSAGENT_TEST_UNSET"}})
		require.NoError(t, err)
		require.Empty(t, v)
	})
}

func TestCommand(t *testing.T) {
	ctx := context.Background()

	_, err := Command(ctx, "")
	require.EqualError(t, err, "empty command")

	_, err = Command(ctx, `echo "unterminated`)
	require.ErrorContains(t, err, "parse")

	_, err = Command(ctx, "false")
	require.ErrorContains(t, err, "run false")
}
