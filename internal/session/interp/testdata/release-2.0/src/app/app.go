package app

import (
	"errors"
	"fmt"
	"path/filepath"
)

func Version() string { return "2.0.1" }

var opened string

func Launch(noPrompts bool) error {
	return nil
}

func Actions() []string {
	return []string{"open_file"}
}

func Invoke(name string, args map[string]interface{}) (interface{}, error) {
	if name != "open_file" {
		return nil, fmt.Errorf("unknown action %s", name)
	}
	path, _ := args["path"].(string)
	if path == "" {
		return nil, errors.New("no path")
	}
	opened = filepath.Base(path)
	return len(path), nil
}

func Read(path string) (interface{}, error) {
	switch path {
	case "file.name":
		return opened, nil
	case "generation":
		return "current", nil
	}
	return nil, fmt.Errorf("unknown state %s", path)
}

func Close() {}
