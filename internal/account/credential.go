package account

import (
	"fmt"
	"os"
	"strings"
)

// ResolveCredential expands a token reference into the token itself.
//
// Supported forms:
//
//	env:NAME      value of the environment variable NAME
//	$NAME, ${NAME}
//	file:PATH     first line of the file at PATH
//	anything else is returned as-is
func ResolveCredential(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", fmt.Errorf("empty credential reference")
	case strings.HasPrefix(ref, "env:"):
		return lookupEnv(strings.TrimPrefix(ref, "env:"))
	case strings.HasPrefix(ref, "${") && strings.HasSuffix(ref, "}"):
		return lookupEnv(ref[2 : len(ref)-1])
	case strings.HasPrefix(ref, "$"):
		return lookupEnv(ref[1:])
	case strings.HasPrefix(ref, "file:"):
		path := strings.TrimPrefix(ref, "file:")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read credential file: %w", err)
		}
		value := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
		if value == "" {
			return "", fmt.Errorf("credential file %s is empty", path)
		}
		return value, nil
	default:
		return ref, nil
	}
}

func lookupEnv(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("empty environment variable name")
	}
	value, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return strings.TrimSpace(value), nil
}
