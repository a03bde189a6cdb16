// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package wire

import "errors"

// ErrParse is wrapped by every transfer-framing parse failure. The
// server's top-level handler maps it to a 400 response.
var ErrParse = errors.New("wire: parse error")
