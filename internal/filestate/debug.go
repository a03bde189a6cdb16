// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package filestate

import (
	"os"
	"strings"

	"github.com/landrop/landrop/lib/logger"
)

var l = logger.DefaultLogger

var debug = strings.Contains(os.Getenv("LANDROP_DEBUG"), "filestate")
