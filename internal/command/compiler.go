package command

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// orderedKeys returns order, the declaration-order key list recorded by
// rawConfig/rawActionType's UnmarshalJSON, when it accounts for every entry
// in m. Hand-built configs (as in tests) have no such order recorded, in
// which case keys are sorted for a deterministic, if arbitrary, result.
func orderedKeys[V any](order []string, m map[string]V) []string {
	if len(order) == len(m) {
		return order
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadConfig reads and parses the command-configuration JSON document at
// path, ported from original_source/text_to_command_nuevo.c's
// parseCommandConfig.
func LoadConfig(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("command: read config %s: %w", path, err)
	}

	var cfg rawConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("command: parse config %s: %w", path, err)
	}

	if cfg.Types == nil {
		return nil, fmt.Errorf("command: %q missing required \"types\" object", path)
	}
	if cfg.Devices == nil {
		return nil, fmt.Errorf("command: %q missing required \"devices\" object", path)
	}
	if cfg.AudioDevices == nil {
		return nil, fmt.Errorf("command: %q missing required \"audio devices\" object", path)
	}

	if len(cfg.Types) > MaxActions {
		return nil, fmt.Errorf("command: %d action types exceeds max %d", len(cfg.Types), MaxActions)
	}
	for name, t := range cfg.Types {
		if len(t.Actions) > MaxSubActions {
			return nil, fmt.Errorf("command: type %q has %d sub-actions, exceeds max %d", name, len(t.Actions), MaxSubActions)
		}
	}

	devicesPerType := map[string]int{}
	for name, dev := range cfg.Devices {
		if _, ok := cfg.Types[dev.Type]; !ok {
			return nil, fmt.Errorf("command: device %q references undefined type %q", name, dev.Type)
		}
		devicesPerType[dev.Type]++
		if devicesPerType[dev.Type] > MaxDevicesPerAction {
			return nil, fmt.Errorf("command: type %q has more than %d devices", dev.Type, MaxDevicesPerAction)
		}
		if len(dev.Aliases) > MaxAliasesPerDevice {
			return nil, fmt.Errorf("command: device %q has %d aliases, exceeds max %d", name, len(dev.Aliases), MaxAliasesPerDevice)
		}
		if seen := map[string]bool{}; true {
			for _, a := range dev.Aliases {
				if seen[a] {
					return nil, fmt.Errorf("command: device %q has duplicate alias %q", name, a)
				}
				seen[a] = true
			}
		}
	}

	return &cfg, nil
}

// Compile expands the parsed configuration into a flat, immutable command
// table, following the nested for-loop algorithm from
// convertActionsToCommands in original_source/text_to_command_nuevo.c.
func Compile(cfg *rawConfig) (*Table, error) {
	table := &Table{}

	// Group devices by their action type for the inner loop, preserving the
	// config's declaration order: command matching is first-win by
	// compilation order (§9), so a more-specific pattern only wins the way
	// its author intended if it keeps its place in the file.
	devicesByType := map[string][]string{} // type -> device names, declaration order
	for _, name := range orderedKeys(cfg.DeviceOrder, cfg.Devices) {
		dev := cfg.Devices[name]
		devicesByType[dev.Type] = append(devicesByType[dev.Type], name)
	}

	for _, typeName := range orderedKeys(cfg.TypeOrder, cfg.Types) {
		actionType := cfg.Types[typeName]

		for _, subName := range orderedKeys(actionType.ActionOrder, actionType.Actions) {
			sub := actionType.Actions[subName]

			for _, actionWord := range sub.ActionWords {
				for _, devName := range devicesByType[typeName] {
					dev := cfg.Devices[devName]

					if err := emit(table, actionWord, sub.ActionCommand, devName, devName, dev.Topic); err != nil {
						return nil, err
					}

					// The command template always substitutes the canonical
					// device name, never the alias, matching
					// replaceWithValues(thisActionCommand, thisDevice, "%s")
					// in the C source (thisDevice, not thisAlias).
					for _, alias := range dev.Aliases {
						if err := emit(table, actionWord, sub.ActionCommand, alias, devName, dev.Topic); err != nil {
							return nil, err
						}
					}
				}
			}
		}
	}

	for name, ad := range cfg.AudioDevices {
		ad.Name = name
		switch ad.Type {
		case AudioDeviceCapture:
			table.CaptureDevices = append(table.CaptureDevices, ad)
		case AudioDevicePlayback:
			table.PlaybackDevices = append(table.PlaybackDevices, ad)
		default:
			return nil, fmt.Errorf("command: audio device %q has unknown type %q", name, ad.Type)
		}
	}

	return table, nil
}

func emit(table *Table, actionWord, actionCommand, deviceOrAlias, commandDevice, topic string) error {
	if len(table.Entries) >= MaxCommands {
		return fmt.Errorf("command: compiled table overflow, exceeds max %d commands", MaxCommands)
	}

	entry := Entry{
		WildcardPattern:   substitute(actionWord, deviceOrAlias, "*") + "*",
		ExtractionPattern: substitute(actionWord, deviceOrAlias, "%s"),
		CommandTemplate:   substitute(actionCommand, commandDevice, "%s"),
		Topic:             topic,
	}
	table.Entries = append(table.Entries, entry)
	return nil
}

// substitute replaces %device_name%, %value%, and %datetime% placeholders in
// template, mirroring replaceWithValues in
// original_source/text_to_command_nuevo.c. Unknown placeholders are left
// literal. %datetime% is not expanded here: it is kept as a literal
// placeholder and expanded at dispatch time by ExpandDatetime below.
func substitute(template, device, value string) string {
	var b strings.Builder
	for {
		start := strings.IndexByte(template, '%')
		if start == -1 {
			b.WriteString(template)
			break
		}
		end := strings.IndexByte(template[start+1:], '%')
		if end == -1 {
			b.WriteString(template)
			break
		}
		end += start + 1

		placeholder := template[start+1 : end]
		b.WriteString(template[:start])

		switch placeholder {
		case "device_name":
			b.WriteString(device)
		case "value":
			b.WriteString(value)
		case "datetime":
			// Left as a literal placeholder; expanded at dispatch time by
			// ExpandDatetime, per the spec's dispatch-time decision (§9).
			b.WriteString("%datetime%")
		default:
			b.WriteString("%" + placeholder + "%")
		}

		template = template[end+1:]
	}
	return b.String()
}

// ExpandDatetime replaces a literal %datetime% placeholder left by
// substitute with the current local time formatted YYYYMMDD_HHMMSS.
func ExpandDatetime(s string) string {
	if !strings.Contains(s, "%datetime%") {
		return s
	}
	return strings.ReplaceAll(s, "%datetime%", time.Now().Format("20060102_150405"))
}
