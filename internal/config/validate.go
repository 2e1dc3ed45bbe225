// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared struct validator. Tag rules live on the config
// structs themselves, next to the fields they constrain.
var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs tag validation and rewrites the first failure into a
// readable message naming the offending field path.
func validateStruct(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	// Namespace is "Config.Ledger.DecayFactor"; drop the type name.
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}
	return fmt.Errorf("invalid value for %s: failed %q constraint", path, fe.Tag())
}
