package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v2"
)

// ConfigParseError denotes failing to parse configuration file.
type ConfigParseError struct {
	err error
}

// Error returns the formatted configuration error.
func (pe ConfigParseError) Error() string {
	return fmt.Sprintf("While parsing config: %s", pe.err.Error())
}

func (pe ConfigParseError) Unwrap() error { return pe.err }

//-----
type inMem struct {
	values map[string]interface{}
}

func (c *inMem) Values() map[string]interface{} {
	return deepCopyMap(c.values, false)
}

//-----

// File is a configuration file source. A file which does not exist is an
// empty source, so a daemon can start without one.
type File struct {
	filetype string
	filename string

	mu     sync.Mutex
	values map[string]interface{}
}

// Name returns the file's path.
func (c *File) Name() string { return c.filename }

func (c *File) Values() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return deepCopyMap(c.values, false)
}

func (c *File) Load() (err error) {
	var data []byte

	data, err = os.ReadFile(c.filename)
	if os.IsNotExist(err) {
		c.mu.Lock()
		c.values = nil
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		return
	}

	config := make(map[string]interface{})

	err = unmarshalReader(c.format(), bytes.NewReader(data), config)
	if err != nil {
		return fmt.Errorf("%s: %w", c.filename, err)
	}

	c.mu.Lock()
	c.values = config
	c.mu.Unlock()

	return nil
}

// format falls back to the file extension.
func (c *File) format() string {
	if c.filetype != "" {
		return c.filetype
	}
	return strings.TrimPrefix(filepath.Ext(c.filename), ".")
}

func unmarshalReader(format string, in io.Reader, c map[string]interface{}) error {
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(in); err != nil {
		return ConfigParseError{err}
	}

	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(buf.Bytes(), &c); err != nil {
			return ConfigParseError{err}
		}

	case "json":
		if err := json.Unmarshal(buf.Bytes(), &c); err != nil {
			return ConfigParseError{err}
		}

	case "toml":
		tree, err := toml.LoadBytes(buf.Bytes())
		if err != nil {
			return ConfigParseError{err}
		}
		tmap := tree.ToMap()
		for k, v := range tmap {
			c[k] = v
		}

	default:
		return ConfigParseError{
			err: fmt.Errorf("Unknown format: %s", format),
		}
	}

	return nil
}
