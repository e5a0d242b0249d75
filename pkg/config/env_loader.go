/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/usbcopier/pkg/logger"
)

var (
	// ErrDstMustBeNonNilPointer indicates that the destination must be a non-nil pointer.
	ErrDstMustBeNonNilPointer = errors.New("dst must be a non-nil pointer")
	// ErrDstMustBePointerToStruct indicates that the destination must be a pointer to a struct.
	ErrDstMustBePointerToStruct = errors.New("dst must be a pointer to a struct")

	errUnsupportedKind = errors.New("unsupported field kind")
)

// wholeConfigVar holds a complete JSON document that replaces per-key overrides.
const wholeConfigVar = "CONFIG_JSON"

// EnvConfigLoader overlays environment variables onto a config struct. Each
// json key becomes one variable: USBCOPIER_MASTER_DIR sets master_dir and a
// nested struct adds its own keys, so USBCOPIER_LOGGING_LEVEL sets
// logging.level.
type EnvConfigLoader struct {
	logger logger.Logger
	prefix string
}

// NewEnvConfigLoader creates a loader whose variables all start with prefix.
func NewEnvConfigLoader(log logger.Logger, prefix string) *EnvConfigLoader {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &EnvConfigLoader{
		logger: log,
		prefix: prefix,
	}
}

// Load implements ConfigLoader. Unset variables leave the field alone. A
// value that does not parse is logged and skipped.
func (e *EnvConfigLoader) Load(_ context.Context, _ string, dst interface{}) error {
	if doc := os.Getenv(e.prefix + wholeConfigVar); doc != "" {
		if err := json.Unmarshal([]byte(doc), dst); err != nil {
			return fmt.Errorf("failed to unmarshal %s%s: %w", e.prefix, wholeConfigVar, err)
		}

		e.logger.Debug().Str("env", e.prefix+wholeConfigVar).Msg("Loaded whole configuration from environment")

		return nil
	}

	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrDstMustBeNonNilPointer
	}

	if v.Elem().Kind() != reflect.Struct {
		return ErrDstMustBePointerToStruct
	}

	e.overlay(v.Elem(), e.prefix)

	return nil
}

// overlay walks the json-tagged fields of v.
func (e *EnvConfigLoader) overlay(v reflect.Value, prefix string) {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		key, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if key == "" || key == "-" {
			continue
		}

		name := prefix + strings.ToUpper(key)

		if nested, ok := structOf(field); ok {
			e.overlay(nested, name+"_")
			continue
		}

		raw, set := os.LookupEnv(name)
		if !set || raw == "" {
			continue
		}

		if err := assign(field, raw); err != nil {
			e.logger.Debug().Err(err).Str("env", name).Msg("Ignoring environment override")
			continue
		}

		e.logger.Debug().Str("env", name).Msg("Applied environment override")
	}
}

// structOf returns the struct behind field, allocating a nil pointer.
func structOf(field reflect.Value) (reflect.Value, bool) {
	switch {
	case field.Kind() == reflect.Struct:
		return field, true
	case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}

		return field.Elem(), true
	default:
		return reflect.Value{}, false
	}
}

// assign parses raw into field. Int64-backed durations take Go duration
// strings, string slices are comma separated and maps are JSON objects.
func assign(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}

		field.SetBool(b)
	case reflect.Int64:
		if d, err := time.ParseDuration(raw); err == nil {
			field.SetInt(int64(d))
			return nil
		}

		fallthrough
	case reflect.Int:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}

		field.SetInt(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("%w: %s", errUnsupportedKind, field.Type())
		}

		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		field.Set(reflect.ValueOf(parts).Convert(field.Type()))
	case reflect.Map:
		return json.Unmarshal([]byte(raw), field.Addr().Interface())
	default:
		return fmt.Errorf("%w: %s", errUnsupportedKind, field.Kind())
	}

	return nil
}
