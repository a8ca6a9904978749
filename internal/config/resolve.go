package config

import (
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

// ResolveValue expands a config value that may reference a secret:
//   - op://vault/item/field reads from 1Password (`op read`)
//   - $(cmd) runs cmd with sh and uses its trimmed stdout
//   - ${VAR} or $VAR reads the environment
//
// Anything else is returned unchanged.
func ResolveValue(value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", nil
	case strings.HasPrefix(value, "op://"):
		return resolveOnePassword(value)
	case strings.HasPrefix(value, "$(") && strings.HasSuffix(value, ")"):
		return resolveCommand(value[2 : len(value)-1])
	default:
		return expandEnv(value), nil
	}
}

// op://vault/item/field?account=team.1password.com
func resolveOnePassword(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("1password: invalid reference %s: %w", ref, err)
	}

	clean := fmt.Sprintf("op://%s%s", u.Host, u.Path)
	args := []string{"read", clean}
	if account := u.Query().Get("account"); account != "" {
		args = append(args, "--account", account)
	}

	output, err := exec.Command("op", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("1password: failed to read %s: %s", clean, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("1password: failed to read %s: %w", clean, err)
	}
	return strings.TrimSpace(string(output)), nil
}

func resolveCommand(cmd string) (string, error) {
	output, err := exec.Command("sh", "-c", cmd).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("command failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("command failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}
