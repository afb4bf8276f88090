package ui

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/pifleet/internal/errors"
)

func keyRune(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func testDevices() []DeviceChoice {
	return []DeviceChoice{
		{ID: "den", Name: "den-pi", Address: "192.168.4.61", User: "pi", Tags: []string{"den", "camera"}},
		{ID: "attic", Name: "attic-pi", Address: "192.168.4.62", User: "pi"},
		{ID: "shed", Name: "shed-pi", Address: "10.0.0.4"},
	}
}

func TestDeviceItemStrings(t *testing.T) {
	item := deviceItem{device: testDevices()[0]}

	assert.Equal(t, "den-pi", item.Title())
	assert.Equal(t, "pi@192.168.4.61 | [den, camera]", item.Description())

	filter := item.FilterValue()
	assert.Contains(t, filter, "den-pi")
	assert.Contains(t, filter, "den")
	assert.Contains(t, filter, "192.168.4.61")
	assert.Contains(t, filter, "camera")
}

func TestDeviceItemDescriptionNoUser(t *testing.T) {
	item := deviceItem{device: DeviceChoice{Name: "shed-pi", Address: "10.0.0.4"}}
	assert.Equal(t, "10.0.0.4", item.Description())
}

func TestDeviceItemDescriptionTagsOnly(t *testing.T) {
	item := deviceItem{device: DeviceChoice{Name: "shed-pi", Tags: []string{"shed"}}}
	assert.Equal(t, "[shed]", item.Description())
}

func TestDevicePickerSelectFirst(t *testing.T) {
	model := NewDevicePickerModel(testDevices())

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m := updated.(DevicePickerModel)

	require.NotNil(t, m.Selected())
	assert.Equal(t, "den-pi", m.Selected().Name)

	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestDevicePickerNavigateAndSelect(t *testing.T) {
	model := NewDevicePickerModel(testDevices())

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m := updated.(DevicePickerModel)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(DevicePickerModel)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(DevicePickerModel)

	require.NotNil(t, m.Selected())
	assert.Equal(t, "attic-pi", m.Selected().Name)
}

func TestDevicePickerCancel(t *testing.T) {
	model := NewDevicePickerModel(testDevices())

	updated, cmd := model.Update(keyRune("q"))
	m := updated.(DevicePickerModel)

	assert.Nil(t, m.Selected())
	assert.Equal(t, "", m.View())

	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestDevicePickerCancelEsc(t *testing.T) {
	model := NewDevicePickerModel(testDevices())

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m := updated.(DevicePickerModel)

	assert.Nil(t, m.Selected())
}

func TestDevicePickerViewShowsTitle(t *testing.T) {
	model := NewDevicePickerModel(testDevices())

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m := updated.(DevicePickerModel)

	assert.Contains(t, m.View(), "Select a device")
}

func TestPickDeviceEmpty(t *testing.T) {
	var buf bytes.Buffer

	choice, err := PickDeviceWithOutput(nil, &buf, strings.NewReader(""))

	require.Error(t, err)
	assert.Nil(t, choice)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestPickDeviceSingleShortCircuits(t *testing.T) {
	var buf bytes.Buffer
	devices := []DeviceChoice{{ID: "den", Name: "den-pi", Address: "192.168.4.61"}}

	choice, err := PickDeviceWithOutput(devices, &buf, strings.NewReader(""))

	require.NoError(t, err)
	require.NotNil(t, choice)
	assert.Equal(t, "den-pi", choice.Name)
	// No picker UI for a single-device fleet
	assert.Equal(t, "", buf.String())
}
