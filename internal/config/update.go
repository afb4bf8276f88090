package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"gopkg.in/yaml.v3"
)

// AddDevice appends a device to the config file's devices list. It edits
// the YAML in place as a node tree, so the operator's comments and
// ordering survive.
func AddDevice(configPath string, d Device) error {
	root, err := readTree(configPath)
	if err != nil {
		return err
	}

	doc := root.Content[0]
	devices := findMapValue(doc, "devices")
	if devices == nil {
		devices = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		doc.Content = append(doc.Content, strNode("devices"), devices)
	}

	for _, item := range devices.Content {
		if entryID(item) == d.EffectiveID() {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("A device named '%s' is already registered", d.EffectiveID()),
				"Remove it first with 'pifleet devices remove', or pick another name.")
		}
	}

	// 'devices: []' parses flow style; switch to block before the list grows
	if len(devices.Content) == 0 {
		devices.Style = 0
	}

	devices.Content = append(devices.Content, deviceNode(d))
	return writeTree(configPath, root)
}

// RemoveDevice deletes the device with the given id (or name) from the
// config file.
func RemoveDevice(configPath, id string) error {
	root, err := readTree(configPath)
	if err != nil {
		return err
	}

	doc := root.Content[0]
	devices := findMapValue(doc, "devices")
	if devices == nil {
		return errors.New(errors.ErrNotFound,
			fmt.Sprintf("No device called '%s' in %s", id, configPath),
			"List what's registered with 'pifleet devices'.")
	}

	for i, item := range devices.Content {
		if entryID(item) == id {
			devices.Content = append(devices.Content[:i], devices.Content[i+1:]...)
			return writeTree(configPath, root)
		}
	}

	return errors.New(errors.ErrNotFound,
		fmt.Sprintf("No device called '%s' in %s", id, configPath),
		"List what's registered with 'pifleet devices'.")
}

func readTree(configPath string) (*yaml.Node, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is readable")
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to parse config file",
			"Check the YAML syntax in "+configPath)
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("invalid YAML document structure")
	}
	if root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected mapping at document root")
	}
	return &root, nil
}

func writeTree(configPath string, root *yaml.Node) error {
	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(root); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	encoder.Close()

	if err := os.WriteFile(configPath, []byte(buf.String()), 0o644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to write "+configPath,
			"Check file permissions")
	}
	return nil
}

// entryID reads the id (or name) out of one device mapping node.
func entryID(item *yaml.Node) string {
	if item.Kind != yaml.MappingNode {
		return ""
	}
	if id := findMapValue(item, "id"); id != nil && id.Value != "" {
		return id.Value
	}
	if name := findMapValue(item, "name"); name != nil {
		return name.Value
	}
	return ""
}

func deviceNode(d Device) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	add := func(key string, val *yaml.Node) {
		n.Content = append(n.Content, strNode(key), val)
	}

	if d.ID != "" {
		add("id", strNode(d.ID))
	}
	add("name", strNode(d.Name))
	add("address", strNode(d.Address))
	if d.Port != 0 {
		add("port", intNode(d.Port))
	}
	if d.User != "" {
		add("user", strNode(d.User))
	}
	if d.KeyPath != "" {
		add("key_path", strNode(d.KeyPath))
	}
	if len(d.Tags) > 0 {
		add("tags", seqNode(d.Tags))
	}
	if d.ControlURL != "" {
		add("control_url", strNode(d.ControlURL))
	}
	return n
}

func strNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

func intNode(value int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(value)}
}

func seqNode(values []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, v := range values {
		n.Content = append(n.Content, strNode(v))
	}
	return n
}

// findMapValue finds a value in a mapping node by key name.
func findMapValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i < len(node.Content)-1; i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]

		if keyNode.Kind == yaml.ScalarNode && keyNode.Value == key {
			return valueNode
		}
	}

	return nil
}
