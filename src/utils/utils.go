// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package utils holds file, configuration and version helpers shared by the
// binaries.
package utils

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lowRISC/asu-keywrap/src/version/buildver"
)

func PrintVersion(exit bool) string {
	ver := buildver.FormattedStr()
	if exit {
		fmt.Println(ver)
		os.Exit(0)
	}
	log.Print(ver)
	return ver
}

// ReadFile reads data from file.
// If succeed, ReadFile returns the data of the file as byte array;
// otherwise ReadFile returns an error.
func ReadFile(filename string) ([]byte, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, fmt.Errorf("file does not exist: %q, error: %v",
			filename, err)
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func ReadFileFromDir(configDir, filename string) ([]byte, error) {
	absPath := filepath.Join(configDir, filename)
	data, err := ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read file: %q, error: %v", absPath, err)
	}
	return data, nil
}

// WriteFile writes data to the named file, creating it if necessary and
// truncating it otherwise.
func WriteFile(name string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err1 := f.Close(); err1 != nil && err == nil {
		err = err1
	}
	return err
}

// ReadHexFile reads a file holding a hex string. Whitespace is ignored.
func ReadHexFile(filename string) ([]byte, error) {
	data, err := ReadFile(filename)
	if err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(strings.Join(strings.Fields(string(data)), ""))
	if err != nil {
		return nil, fmt.Errorf("file %q is not hex encoded: %v", filename, err)
	}
	return b, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setDefaults applies `default:"..."` tags to zero-valued fields of the
// struct v points to, descending into nested structs and struct pointers.
func setDefaults(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i)
		if !value.CanSet() {
			continue
		}

		switch {
		case value.Kind() == reflect.Struct:
			if err := setDefaults(value); err != nil {
				return err
			}
			continue
		case value.Kind() == reflect.Ptr && value.Type().Elem().Kind() == reflect.Struct:
			if !value.IsNil() {
				if err := setDefaults(value.Elem()); err != nil {
					return err
				}
			}
			continue
		}

		defaultTag := field.Tag.Get("default")
		if defaultTag == "" || !value.IsZero() {
			continue
		}
		if err := setValue(value, defaultTag); err != nil {
			return fmt.Errorf("bad default %q for field %s: %v", defaultTag, field.Name, err)
		}
	}
	return nil
}

func setValue(value reflect.Value, s string) error {
	if value.Type() == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		value.SetInt(int64(d))
		return nil
	}
	switch value.Kind() {
	case reflect.String:
		value.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		value.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 0, value.Type().Bits())
		if err != nil {
			return err
		}
		value.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 0, value.Type().Bits())
		if err != nil {
			return err
		}
		value.SetUint(n)
	default:
		return fmt.Errorf("unsupported kind %s", value.Kind())
	}
	return nil
}

// SetDefaults applies the `default` struct tags of the struct v points to.
func SetDefaults(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("SetDefaults needs a pointer to a struct, got %T", v)
	}
	return setDefaults(rv.Elem())
}

// LoadConfig reads a Yaml configuration file from the specified path with
// filename and unmarshals it into the provided struct (v).
//
// Parameters:
//   - configDir:  The directory path of the Yaml configuration file.
//   - configFile: The file path of the Yaml configuration file.
//   - v:          A pointer to the struct where the configuration will be unmarshaled.
//
// Returns:
//   - An error if there was an issue reading or unmarshaling the configuration file.
func LoadConfig(configDir, configFile string, v interface{}) error {
	yamlData, err := ReadFileFromDir(configDir, configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration file: %v", err)
	}

	err = yaml.Unmarshal(yamlData, v)
	if err != nil {
		// Return an error if the YAML does not match any known configuration types
		return fmt.Errorf("failed to unmarshal configuration file: %v", err)
	}

	return SetDefaults(v)
}
