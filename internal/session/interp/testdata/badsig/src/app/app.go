package app

const Version = "1.0"

func Launch() {}

func Actions() []string { return nil }

func Invoke(name string, args map[string]interface{}) (interface{}, error) { return nil, nil }

func Read(path string) (interface{}, error) { return nil, nil }

func Close() {}
