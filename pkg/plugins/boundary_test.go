package plugins

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEntry struct {
	spec InstanceSpec
}

func (s *stubEntry) Init(context.Context) error             { return nil }
func (s *stubEntry) OnInitialization(context.Context) error { return nil }
func (s *stubEntry) OnUninstall(context.Context) error      { return nil }

func stubFactory(spec InstanceSpec) (Entrypoint, error) {
	return &stubEntry{spec: spec}, nil
}

func newStubHost(t *testing.T) *HostNamespace {
	t.Helper()
	host := NewHostNamespace()
	require.NoError(t, host.Register("host.Base", stubFactory, map[string]any{"level": "host", "shared": true}))
	require.NoError(t, host.Register("host.Shared", stubFactory, nil))
	return host
}

func TestHostNamespace_Register(t *testing.T) {
	host := newStubHost(t)

	err := host.Register("host.Base", stubFactory, nil)
	assert.ErrorIs(t, err, ErrDuplicateDefinition)

	assert.Error(t, host.Register("", stubFactory, nil))
	assert.Error(t, host.Register("host.NoFactory", nil, nil))

	assert.Equal(t, []string{"host.Base", "host.Shared"}, host.Names())

	handle, err := host.Resolve("host.Base")
	require.NoError(t, err)
	assert.True(t, handle.IsHost())
	assert.Equal(t, HostOwner, handle.Owner)

	_, err = host.Resolve("host.Missing")
	assert.ErrorIs(t, err, ErrUnresolvedName)
}

func TestBoundary_Load(t *testing.T) {
	b := NewBoundary(newStubHost(t))

	handle, err := b.Load("Main", []byte("extends: host.Base\n"))
	require.NoError(t, err)
	assert.Equal(t, "Main", handle.Name)
	assert.Equal(t, b.ID(), handle.Owner)
	assert.False(t, handle.IsHost())

	t.Run("duplicate definition", func(t *testing.T) {
		_, err := b.Load("Main", []byte("extends: host.Base\n"))
		assert.ErrorIs(t, err, ErrDuplicateDefinition)

		var defErr *DefinitionError
		require.True(t, errors.As(err, &defErr))
		assert.Equal(t, "Main", defErr.Name)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := b.Load("Broken", []byte("not: [valid"))
		assert.ErrorIs(t, err, ErrMalformedUnit)
	})

	t.Run("name mismatch", func(t *testing.T) {
		_, err := b.Load("Other", []byte("name: Different\nextends: host.Base\n"))
		assert.ErrorIs(t, err, ErrMalformedUnit)
	})

	t.Run("self extension", func(t *testing.T) {
		_, err := b.Load("Loop", []byte("extends: Loop\n"))
		assert.ErrorIs(t, err, ErrMalformedUnit)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := b.Load("", []byte("extends: host.Base\n"))
		assert.ErrorIs(t, err, ErrMalformedUnit)
	})

	t.Run("failed loads define nothing", func(t *testing.T) {
		assert.Equal(t, []string{"Main"}, b.Defined())
	})
}

func TestBoundary_Resolve(t *testing.T) {
	host := newStubHost(t)
	b := NewBoundary(host)

	_, err := b.Load("Main", []byte("extends: host.Base\n"))
	require.NoError(t, err)

	handle, err := b.Resolve("Main")
	require.NoError(t, err)
	assert.Equal(t, b.ID(), handle.Owner)

	handle, err = b.Resolve("host.Shared")
	require.NoError(t, err)
	assert.Equal(t, HostOwner, handle.Owner)

	_, err = b.Resolve("Missing")
	assert.ErrorIs(t, err, ErrUnresolvedName)

	t.Run("private definition shadows the parent", func(t *testing.T) {
		shadow := NewBoundary(host)
		_, err := shadow.Load("host.Shared", []byte("extends: host.Base\n"))
		require.NoError(t, err)

		handle, err := shadow.Resolve("host.Shared")
		require.NoError(t, err)
		assert.Equal(t, shadow.ID(), handle.Owner)

		parentHandle, err := host.Resolve("host.Shared")
		require.NoError(t, err)
		assert.Equal(t, HostOwner, parentHandle.Owner)
	})

	t.Run("nil parent", func(t *testing.T) {
		orphan := NewBoundary(nil)
		_, err := orphan.Resolve("host.Shared")
		assert.ErrorIs(t, err, ErrUnresolvedName)
	})
}

func TestBoundary_Isolation(t *testing.T) {
	host := newStubHost(t)
	raw := []byte("extends: host.Base\n")

	first := NewBoundary(host)
	second := NewBoundary(host)
	assert.NotEqual(t, first.ID(), second.ID())

	_, err := first.Load("Main", raw)
	require.NoError(t, err)
	_, err = first.Load("Helper", raw)
	require.NoError(t, err)
	_, err = second.Load("Main", raw)
	require.NoError(t, err)

	_, err = second.Resolve("Helper")
	assert.ErrorIs(t, err, ErrUnresolvedName)

	a, err := first.Resolve("Main")
	require.NoError(t, err)
	b, err := second.Resolve("Main")
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	for _, boundary := range []*Boundary{first, second} {
		handle, err := boundary.Resolve("host.Shared")
		require.NoError(t, err)
		assert.Equal(t, HostOwner, handle.Owner)
	}

	_, err = host.Resolve("Main")
	assert.ErrorIs(t, err, ErrUnresolvedName)
}

func TestBoundary_Instantiate(t *testing.T) {
	host := newStubHost(t)

	t.Run("merges properties along the chain", func(t *testing.T) {
		b := NewBoundary(host)
		_, err := b.Load("Base", []byte("extends: host.Base\nproperties:\n  level: base\n  base_only: 1\n"))
		require.NoError(t, err)
		_, err = b.Load("Main", []byte("extends: Base\nproperties:\n  level: main\n"))
		require.NoError(t, err)

		entry, err := b.Instantiate("alpha", "Main")
		require.NoError(t, err)

		spec := entry.(*stubEntry).spec
		assert.Equal(t, "alpha", spec.PluginID)
		assert.Equal(t, "Main", spec.TypeName)
		assert.Equal(t, "main", spec.Properties["level"])
		assert.Equal(t, 1, spec.Properties["base_only"])
		assert.Equal(t, true, spec.Properties["shared"])
	})

	t.Run("host type directly", func(t *testing.T) {
		entry, err := NewBoundary(host).Instantiate("alpha", "host.Shared")
		require.NoError(t, err)
		assert.NotNil(t, entry)
	})

	t.Run("unresolved main", func(t *testing.T) {
		_, err := NewBoundary(host).Instantiate("alpha", "Missing")
		assert.ErrorIs(t, err, ErrEntryPointMissing)
		assert.ErrorIs(t, err, ErrUnresolvedName)
	})

	t.Run("chain without host type", func(t *testing.T) {
		b := NewBoundary(host)
		_, err := b.Load("Main", []byte("extends: Missing\n"))
		require.NoError(t, err)

		_, err = b.Instantiate("alpha", "Main")
		assert.ErrorIs(t, err, ErrEntryPointMissing)
	})

	t.Run("cycle", func(t *testing.T) {
		b := NewBoundary(host)
		_, err := b.Load("A", []byte("extends: B\n"))
		require.NoError(t, err)
		_, err = b.Load("B", []byte("extends: A\n"))
		require.NoError(t, err)

		_, err = b.Instantiate("alpha", "A")
		assert.ErrorIs(t, err, ErrMalformedUnit)
	})

	t.Run("factory failure", func(t *testing.T) {
		failing := NewHostNamespace()
		failing.MustRegister("host.Failing", func(InstanceSpec) (Entrypoint, error) {
			return nil, errors.New("missing setting")
		}, nil)

		_, err := NewBoundary(failing).Instantiate("alpha", "host.Failing")
		assert.ErrorIs(t, err, ErrMalformedUnit)
	})

	t.Run("factory returns nil", func(t *testing.T) {
		empty := NewHostNamespace()
		empty.MustRegister("host.Nil", func(InstanceSpec) (Entrypoint, error) {
			return nil, nil
		}, nil)

		_, err := NewBoundary(empty).Instantiate("alpha", "host.Nil")
		assert.ErrorIs(t, err, ErrEntryPointMissing)
	})
}
