// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package softhsm2 creates SoftHSM sandboxes in a specific location and
// initializes tokens in them.
//
// A sandbox can have tokens scribbled into it for testing, either as part of
// a unit test or manual testing, and is not tied to the global SoftHSM pool
// (which is usually owned by the root user, if it exists at all!).
package softhsm2

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
)

const (
	// The environment variable used by SoftHSM for finding its configuration files.
	//
	// When spawning a subprocess or opening the PKCS#11 plugin, the environment should
	// be set to this location.
	EnvVar = "SOFTHSM2_CONF"

	// The environment variable used by this library to find the desired SoftHSM sandbox
	// location, if specified.
	DirVar = "SOFTHSM2_DIR"

	// ModuleVar overrides the search for libsofthsm2.so.
	ModuleVar = "SOFTHSM2_MODULE"
)

// The default path to place a sandbox into.
var DefaultPath = filepath.Join(os.TempDir(), "asu-softhsm2")

// modulePaths are the usual install locations of the PKCS#11 plugin.
var modulePaths = []string{
	"/usr/lib/softhsm/libsofthsm2.so",
	"/usr/lib64/softhsm/libsofthsm2.so",
	"/usr/lib/x86_64-linux-gnu/softhsm/libsofthsm2.so",
	"/usr/lib/aarch64-linux-gnu/softhsm/libsofthsm2.so",
	"/usr/local/lib/softhsm/libsofthsm2.so",
	"/opt/homebrew/lib/softhsm/libsofthsm2.so",
}

var confTmpl = template.Must(template.New("softhsm.conf").Parse(`
directories.tokendir = {{.}}
objectstore.backend = file
objectstore.umask = 0077

log.level = ERROR
slots.removable = false
slots.mechanisms = ALL
library.reset_on_fork = false
`))

// MakeSandbox configures the sandbox that SoftHSM writes its configuration files to.
//
// The sandbox will be placed in $SOFTHSM2_DIR, if that environment variable is set,
// or otherwise in DefaultPath.
//
// This function creates the appropriate files and directories in the sandbox.
func MakeSandbox() (string, error) {
	path, ok := os.LookupEnv(DirVar)
	if !ok {
		path = DefaultPath
	}
	return MakeSandboxIn(path)
}

// MakeSandboxIn is like MakeSandbox but with an explicit path.
func MakeSandboxIn(sandboxPath string) (string, error) {
	sandboxPath, err := filepath.Abs(sandboxPath)
	if err != nil {
		return "", err
	}

	var (
		rwConfPath = filepath.Join(sandboxPath, "softhsm.conf")
		rwTokenDir = filepath.Join(sandboxPath, "tokens")
	)

	if err := os.MkdirAll(sandboxPath, 0700); err != nil {
		return "", err
	}

	out, err := os.Create(rwConfPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	err = confTmpl.Execute(out, rwTokenDir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(rwTokenDir, 0700); err != nil {
		return "", err
	}

	return rwConfPath, nil
}

// FindModule returns the path of libsofthsm2.so, or "" when SoftHSM is not
// installed.
func FindModule() string {
	if p, ok := os.LookupEnv(ModuleVar); ok {
		return p
	}
	for _, p := range modulePaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// InitToken initializes a token labelled label in the first free slot of the
// sandbox described by confPath.
func InitToken(confPath, label, soPin, pin string) error {
	util, err := exec.LookPath("softhsm2-util")
	if err != nil {
		return err
	}
	cmd := exec.Command(util,
		"--init-token", "--free",
		"--label", label,
		"--so-pin", soPin,
		"--pin", pin,
	)
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%s", EnvVar, confPath))

	var stdout strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("could not run softhsm2-util: %v; output:\n%s", err, stdout.String())
	}
	return nil
}
