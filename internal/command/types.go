// Package command compiles the action×device JSON configuration into a flat
// table of matchable command patterns and dispatches recognized text against
// it, publishing matches to the message bus.
package command

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MaxActions bounds the number of action types a config document may define.
const MaxActions = 64

// MaxSubActions bounds the number of sub-actions per action type.
const MaxSubActions = 64

// MaxDevicesPerAction bounds the number of devices per action type.
const MaxDevicesPerAction = 256

// MaxAliasesPerDevice bounds the number of aliases per device.
const MaxAliasesPerDevice = 16

// MaxCommands bounds the total number of compiled command-table entries.
const MaxCommands = 16384

// AudioDeviceKind distinguishes capture from playback audio device entries.
type AudioDeviceKind string

const (
	AudioDeviceCapture  AudioDeviceKind = "capture"
	AudioDevicePlayback AudioDeviceKind = "playback"
)

// SubAction is one named action within an action type: a set of spoken
// templates and the bus command template they expand to.
type SubAction struct {
	Name          string   `json:"-"`
	ActionWords   []string `json:"action_words"`
	ActionCommand string   `json:"action_command"`
}

// Device is one controllable device: a canonical name, aliases, an optional
// unit, and the bus topic commands for it are published to.
type Device struct {
	Name    string   `json:"-"`
	Type    string   `json:"type"`
	Aliases []string `json:"aliases"`
	Unit    string   `json:"unit"`
	Topic   string   `json:"topic"`
}

// AudioDevice is one named audio backend identifier (capture or playback).
type AudioDevice struct {
	Name    string          `json:"-"`
	Type    AudioDeviceKind `json:"type"`
	Aliases []string        `json:"aliases"`
	Device  string          `json:"device"`
}

// rawConfig mirrors the on-disk JSON schema described in the specification.
// TypeOrder/DeviceOrder record the JSON object's declaration order for
// Types/Devices respectively, since command matching is first-win by
// compilation order (config authors rely on this to break ties between
// overlapping patterns) and a Go map has no order of its own.
type rawConfig struct {
	Types        map[string]rawActionType `json:"types"`
	TypeOrder    []string                 `json:"-"`
	Devices      map[string]Device        `json:"devices"`
	DeviceOrder  []string                 `json:"-"`
	AudioDevices map[string]AudioDevice   `json:"audio devices"`
}

// UnmarshalJSON decodes the object while also recording each declared
// object's key order, which plain map unmarshaling discards.
func (c *rawConfig) UnmarshalJSON(data []byte) error {
	var aux struct {
		Types        json.RawMessage `json:"types"`
		Devices      json.RawMessage `json:"devices"`
		AudioDevices json.RawMessage `json:"audio devices"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Types != nil {
		if err := json.Unmarshal(aux.Types, &c.Types); err != nil {
			return err
		}
		order, err := objectKeyOrder(aux.Types)
		if err != nil {
			return err
		}
		c.TypeOrder = order
	}
	if aux.Devices != nil {
		if err := json.Unmarshal(aux.Devices, &c.Devices); err != nil {
			return err
		}
		order, err := objectKeyOrder(aux.Devices)
		if err != nil {
			return err
		}
		c.DeviceOrder = order
	}
	if aux.AudioDevices != nil {
		if err := json.Unmarshal(aux.AudioDevices, &c.AudioDevices); err != nil {
			return err
		}
	}
	return nil
}

// rawActionType mirrors one entry of the "types" object. ActionOrder
// records the declaration order of its "actions" object for the same
// first-win reason as rawConfig's TypeOrder/DeviceOrder.
type rawActionType struct {
	Actions     map[string]SubAction `json:"actions"`
	ActionOrder []string             `json:"-"`
}

// UnmarshalJSON decodes the object while also recording the "actions"
// object's key order.
func (t *rawActionType) UnmarshalJSON(data []byte) error {
	var aux struct {
		Actions json.RawMessage `json:"actions"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Actions == nil {
		return nil
	}
	if err := json.Unmarshal(aux.Actions, &t.Actions); err != nil {
		return err
	}
	order, err := objectKeyOrder(aux.Actions)
	if err != nil {
		return err
	}
	t.ActionOrder = order
	return nil
}

// objectKeyOrder returns the top-level key names of a JSON object in the
// order they appear in data, using the streaming token reader so that no
// map (and therefore no Go iteration-order randomization) is involved.
func objectKeyOrder(data json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil {
		return nil, err
	} else if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("command: expected object, got %v", tok)
	}

	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		keys = append(keys, keyTok.(string))

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// Entry is one compiled command-table row: the flattened product of
// (subAction × actionWord × device-name-or-alias).
type Entry struct {
	WildcardPattern   string // actionWord with device filled, value="*", trailing "*"
	ExtractionPattern string // actionWord with device filled, value="%s"
	CommandTemplate   string // actionCommand with device filled, value left as "%s"
	Topic             string
}

// Table is the compiled, immutable command table plus the parsed audio
// device lists.
type Table struct {
	Entries          []Entry
	CaptureDevices   []AudioDevice
	PlaybackDevices  []AudioDevice
}
