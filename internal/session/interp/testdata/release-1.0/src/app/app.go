package app

import (
	"errors"
	"fmt"
)

const Version = "1.0"

var opened string

func Launch(noPrompts bool) error {
	return nil
}

func Actions() []string {
	return []string{"open_file", "crash"}
}

func Invoke(name string, args map[string]interface{}) (interface{}, error) {
	switch name {
	case "open_file":
		path, _ := args["path"].(string)
		if path == "" {
			return nil, errors.New("no path")
		}
		opened = path
		return len(path), nil
	case "crash":
		var m map[string]int
		m["boom"] = 1
		return nil, nil
	}
	return nil, fmt.Errorf("unknown action %s", name)
}

func Read(path string) (interface{}, error) {
	switch path {
	case "file.name":
		return opened, nil
	case "generation":
		return "legacy", nil
	}
	return nil, fmt.Errorf("unknown state %s", path)
}

func Close() {}
