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

	"github.com/carverauto/hostwatch/pkg/logger"
	"github.com/carverauto/hostwatch/pkg/models"
	"github.com/rs/zerolog"
)

var (
	// ErrDstMustBeNonNilPointer indicates that the destination must be a non-nil pointer.
	ErrDstMustBeNonNilPointer = errors.New("dst must be a non-nil pointer")
	// ErrDstMustBePointerToStruct indicates that the destination must be a pointer to a struct.
	ErrDstMustBePointerToStruct = errors.New("dst must be a pointer to a struct")

	errUnsupportedField = errors.New("unsupported field type")
)

var durationType = reflect.TypeOf(models.Duration(0))

// EnvConfigLoader loads configuration from environment variables named after
// the JSON keys, nested with underscores: HOSTWATCH_TELEGRAM_TOKEN sets
// Telegram.Token. A complete document in <prefix>CONFIG_JSON wins over
// individual variables.
type EnvConfigLoader struct {
	logger logger.Logger
	prefix string
	// loaded counts values taken from the environment.
	loaded int
}

func NewEnvConfigLoader(log logger.Logger, prefix string) *EnvConfigLoader {
	return &EnvConfigLoader{
		logger: log,
		prefix: prefix,
	}
}

func (e *EnvConfigLoader) Load(_ context.Context, _ string, dst interface{}) error {
	if doc := os.Getenv(e.prefix + "CONFIG_JSON"); doc != "" {
		if err := json.Unmarshal([]byte(doc), dst); err != nil {
			return fmt.Errorf("failed to unmarshal %sCONFIG_JSON: %w", e.prefix, err)
		}

		e.debug().Msg("Loaded configuration from CONFIG_JSON")

		return nil
	}

	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrDstMustBeNonNilPointer
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return ErrDstMustBePointerToStruct
	}

	e.loadStruct(v, e.prefix)
	e.debug().Int("values", e.loaded).Msg("Loaded configuration from environment variables")

	return nil
}

// loadStruct fills v from the environment. Malformed values are logged and
// skipped so validation reports the field that ends up missing.
func (e *EnvConfigLoader) loadStruct(v reflect.Value, prefix string) {
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

		envName := prefix + strings.ToUpper(key)

		if err := e.setField(field, envName); err != nil {
			e.debug().Err(err).Str("env", envName).Msg("Ignoring environment variable")
		}
	}
}

func (e *EnvConfigLoader) setField(field reflect.Value, envName string) error {
	if isSection(field.Type()) {
		e.loadSection(field, envName+"_")
		return nil
	}

	raw, ok := os.LookupEnv(envName)
	if !ok || raw == "" {
		return nil
	}

	if err := setValue(field, raw); err != nil {
		return fmt.Errorf("%s: %w", envName, err)
	}

	e.loaded++

	return nil
}

// loadSection fills a nested struct. Optional pointer sections such as nats
// and ticket stay nil unless one of their variables is set.
func (e *EnvConfigLoader) loadSection(field reflect.Value, prefix string) {
	if field.Kind() == reflect.Struct {
		e.loadStruct(field, prefix)
		return
	}

	if !field.IsNil() {
		e.loadStruct(field.Elem(), prefix)
		return
	}

	before := e.loaded
	section := reflect.New(field.Type().Elem())
	e.loadStruct(section.Elem(), prefix)

	if e.loaded > before {
		field.Set(section)
	}
}

func (e *EnvConfigLoader) debug() *zerolog.Event {
	if e.logger == nil {
		return nil
	}

	return e.logger.Debug()
}

func isSection(t reflect.Type) bool {
	return t.Kind() == reflect.Struct || (t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct)
}

func setValue(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := models.ParseDuration(raw)
		if err != nil {
			return err
		}

		field.SetInt(int64(d))

		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}

		field.SetBool(b)
	case reflect.Int:
		i, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}

		field.SetInt(int64(i))
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}

		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("%w: %s", errUnsupportedField, field.Type())
		}

		// Entity lists are comma-separated.
		values := strings.Split(raw, ",")
		for i := range values {
			values[i] = strings.TrimSpace(values[i])
		}

		field.Set(reflect.ValueOf(values).Convert(field.Type()))
	case reflect.Map:
		return json.Unmarshal([]byte(raw), field.Addr().Interface())
	case reflect.Ptr:
		elem := reflect.New(field.Type().Elem())
		if err := setValue(elem.Elem(), raw); err != nil {
			return err
		}

		field.Set(elem)
	default:
		return fmt.Errorf("%w: %s", errUnsupportedField, field.Kind())
	}

	return nil
}
