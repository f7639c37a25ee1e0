package services

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/familytree/gedcom"
	"github.com/camden-git/familytree/layout"
	"github.com/camden-git/familytree/realtime"
	"github.com/camden-git/familytree/tree"
)

func newLayoutService(t *testing.T) (*LayoutService, *TreeService, *recordingHub, uint) {
	t.Helper()
	trees, _, hub := newTreeService(t)
	id := importFamily(t, trees)
	svc := NewLayoutService(trees, hub, LayoutOptions{
		TickInterval:    time.Millisecond,
		BroadcastEvery:  10,
		MaxTicks:        600,
		RestartDebounce: 5 * time.Millisecond,
	})
	trees.OnChange(svc.TreeChanged)
	t.Cleanup(svc.Shutdown)
	return svc, trees, hub, id
}

func TestLayoutService_Compute(t *testing.T) {
	svc, _, _, id := newLayoutService(t)

	res, err := svc.Compute(id, LayoutRequest{})
	require.NoError(t, err)
	assert.Len(t, res.Nodes, 4)
	assert.True(t, res.Stable)
	require.NotNil(t, res.Bounds)

	cards := 0
	for _, c := range res.Commands {
		if c.Kind == layout.DrawCard {
			cards++
		}
	}
	assert.Equal(t, 4, cards)

	// the next computation starts warm from the previous positions
	warm := svc.Positions(id)
	require.Len(t, warm, 4)
	again, err := svc.Compute(id, LayoutRequest{Ticks: 1})
	require.NoError(t, err)
	for _, n := range again.Nodes {
		assert.InDelta(t, warm[n.ID].X, n.X, 50)
		assert.InDelta(t, warm[n.ID].Y, n.Y, 50)
	}

	_, err = svc.Compute(id, LayoutRequest{Ticks: maxHeadlessTicks + 1})
	assert.ErrorIs(t, err, tree.ErrValidation)
	_, err = svc.Compute(999, LayoutRequest{})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestLayoutService_RenderSVGAndFit(t *testing.T) {
	svc, _, _, id := newLayoutService(t)

	var buf bytes.Buffer
	require.NoError(t, svc.RenderSVG(&buf, id, LayoutRequest{Locale: gedcom.DefaultLocale}, 20))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<svg "))
	assert.Contains(t, out, "John Smith")

	tr, err := svc.Fit(id, LayoutRequest{}, layout.Viewport{Width: 800, Height: 600}, 20)
	require.NoError(t, err)
	assert.Greater(t, tr.K, 0.0)
	assert.LessOrEqual(t, tr.K, float64(layout.MaxZoom))
}

func TestLayoutService_EmptyTree(t *testing.T) {
	svc, trees, _, _ := newLayoutService(t)
	empty, err := trees.CreateTree(CreateTreeRequest{Name: "Empty"})
	require.NoError(t, err)

	res, err := svc.Compute(empty.ID, LayoutRequest{})
	require.NoError(t, err)
	assert.Empty(t, res.Nodes)
	assert.Nil(t, res.Bounds)

	tr, err := svc.Fit(empty.ID, LayoutRequest{}, layout.Viewport{Width: 800, Height: 600}, 20)
	require.NoError(t, err)
	assert.Equal(t, layout.Identity, tr)
}

func TestLayoutService_DragStreamsFrames(t *testing.T) {
	svc, _, hub, id := newLayoutService(t)

	require.NoError(t, svc.Drag(id, DragRequest{Phase: "start", PersonID: "I3", X: 500, Y: 500}))
	assert.True(t, svc.Running(id))
	require.Eventually(t, func() bool {
		return len(hub.ofType(realtime.EventLayoutTick)) > 0
	}, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return svc.Positions(id)["I3"] == layout.Pos{X: 500, Y: 500}
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Drag(id, DragRequest{Phase: "end", PersonID: "I3"}))

	err := svc.Drag(id, DragRequest{Phase: "start", PersonID: "ghost"})
	assert.ErrorIs(t, err, tree.ErrPersonNotFound)
	err = svc.Drag(id, DragRequest{Phase: "fling", PersonID: "I3"})
	assert.ErrorIs(t, err, tree.ErrValidation)

	svc.Stop(id)
	assert.False(t, svc.Running(id))
	assert.Len(t, svc.Positions(id), 4, "positions survive the engine")
}

func TestLayoutService_RestartsAfterEdits(t *testing.T) {
	svc, trees, _, id := newLayoutService(t)
	require.NoError(t, svc.Start(id))

	for _, name := range []string{"Kim", "Lee", "Max"} {
		_, err := trees.Apply(id, tree.EditRequest{
			Op:     "add_person",
			Person: &gedcom.Person{ID: name, Names: map[string]string{gedcom.DefaultLocale: name}, Father: "I3"},
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(svc.Positions(id)) == 7
	}, 5*time.Second, 5*time.Millisecond, "engine restarted with the new people")
	assert.True(t, svc.Running(id))

	require.NoError(t, trees.DeleteTree(id))
	assert.False(t, svc.Running(id))
	assert.Empty(t, svc.Positions(id))
}
