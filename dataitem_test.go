package miniac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constantHandler struct {
	value int
}

func (h *constantHandler) OnActivate(item *Item[int], saved Bundle) error { return nil }
func (h *constantHandler) OnSynchronizeValue(item *Item[int]) (int, error) {
	return h.value, nil
}
func (h *constantHandler) OnValueChangeRequested(item *Item[int], value int) error {
	h.value = value
	return nil
}
func (h *constantHandler) OnSaveState(item *Item[int], out Bundle) {}
func (h *constantHandler) OnDeactivate(item *Item[int])            {}

type sumHandler struct {
	a, b *Item[int]
}

func (h *sumHandler) OnActivate(item *Item[int], saved Bundle) error {
	return item.SetDependencies(h.a, h.b)
}
func (h *sumHandler) OnSynchronizeValue(item *Item[int]) (int, error) {
	av, _ := h.a.Value()
	bv, _ := h.b.Value()
	return av + bv, nil
}
func (h *sumHandler) OnValueChangeRequested(item *Item[int], value int) error {
	return errNotSupported
}
func (h *sumHandler) OnSaveState(item *Item[int], out Bundle) {}
func (h *sumHandler) OnDeactivate(item *Item[int])             {}

var errNotSupported = assertErr("not supported")

type assertErr string

func (e assertErr) Error() string { return string(e) }

// newDataTestApp returns an Application with a single DataGateway attached
// under id "data", ready to host data items in tests.
func newDataTestApp(t *testing.T) *Application {
	app := NewApplication()
	require.NoError(t, app.AddGateway("data", NewDataGateway()))
	return app
}

func TestAddDataItem_DuplicateID(t *testing.T) {
	app := newDataTestApp(t)
	_, err := AddDataItem[int](app, "data", "x", &constantHandler{value: 1}, false)
	require.NoError(t, err)

	_, err = AddDataItem[int](app, "data", "x", &constantHandler{value: 2}, false)
	assert.Error(t, err)
}

func TestAddDataItem_InvalidID(t *testing.T) {
	app := newDataTestApp(t)
	_, err := AddDataItem[int](app, "data", "", &constantHandler{}, false)
	assert.Error(t, err)
}

func TestAddDataItem_UnknownGateway(t *testing.T) {
	app := newDataTestApp(t)
	_, err := AddDataItem[int](app, "nosuch", "x", &constantHandler{value: 1}, false)
	assert.Error(t, err)
}

func TestAddDataItem_NotADataGateway(t *testing.T) {
	app := NewApplication()
	_, err := AddDataItem[int](app, SystemGatewayID, "x", &constantHandler{value: 1}, false)
	assert.Error(t, err)
}

func TestGetDataItem_TypeMismatch(t *testing.T) {
	app := newDataTestApp(t)
	_, err := AddDataItem[int](app, "data", "x", &constantHandler{value: 1}, false)
	require.NoError(t, err)

	_, err = GetDataItem[string](app, "data/x")
	assert.Error(t, err)
}

func TestGetDataItem_Found(t *testing.T) {
	app := newDataTestApp(t)
	item, err := AddDataItem[int](app, "data", "x", &constantHandler{value: 7}, false)
	require.NoError(t, err)

	found, err := GetDataItem[int](app, "data/x")
	require.NoError(t, err)
	assert.Same(t, item, found)
}

func TestDataItem_DependencySum(t *testing.T) {
	app := newDataTestApp(t)
	a, err := AddDataItem[int](app, "data", "a", &constantHandler{value: 2}, false)
	require.NoError(t, err)
	b, err := AddDataItem[int](app, "data", "b", &constantHandler{value: 3}, false)
	require.NoError(t, err)

	total, err := AddDataItem[int](app, "data", "total", &sumHandler{a: a, b: b}, true)
	require.NoError(t, err)

	v, ok := total.Value()
	assert.True(t, ok)
	assert.Equal(t, 5, v)
}

func TestDataItem_SelfDependencyRejected(t *testing.T) {
	app := newDataTestApp(t)
	var handler *selfDepHandler
	handler = &selfDepHandler{}
	_, err := AddDataItem[int](app, "data", "self", handler, false)
	assert.Error(t, err)
}

type selfDepHandler struct {
	item *Item[int]
}

func (h *selfDepHandler) OnActivate(item *Item[int], saved Bundle) error {
	h.item = item
	return item.SetDependencies(item)
}
func (h *selfDepHandler) OnSynchronizeValue(item *Item[int]) (int, error) { return 0, nil }
func (h *selfDepHandler) OnValueChangeRequested(item *Item[int], value int) error {
	return errNotSupported
}
func (h *selfDepHandler) OnSaveState(item *Item[int], out Bundle) {}
func (h *selfDepHandler) OnDeactivate(item *Item[int])             {}

func TestDataItem_ReadOnlyRejectsChange(t *testing.T) {
	app := newDataTestApp(t)
	item, err := AddDataItem[int](app, "data", "x", &constantHandler{value: 1}, true)
	require.NoError(t, err)

	assert.Error(t, item.RequestChange(5))
}
