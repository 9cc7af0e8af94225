/*
 * Copyright 2022 CloudWeGo Authors
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

package bcflow

import (
    `github.com/cloudwego/bcflow/internal/bailout`
)

// BailoutError is a permanent compilation failure. The method cannot be
// compiled and stays interpreted.
type BailoutError = bailout.Error

// BailoutRule names the reason of a BailoutError.
type BailoutRule = bailout.Rule

const (
    ExceptionEntryReachedNormally = bailout.ExceptionEntryReachedNormally
    DanglingSplit                 = bailout.DanglingSplit
    InvalidBytecode               = bailout.InvalidBytecode
    UnbalancedMonitors            = bailout.UnbalancedMonitors
    IrreducibleLoop               = bailout.IrreducibleLoop
    TooManyLoops                  = bailout.TooManyLoops
    LoopFromHandler               = bailout.LoopFromHandler
    SubroutineTooDeep             = bailout.SubroutineTooDeep
    UnstructuredSubroutine        = bailout.UnstructuredSubroutine
    SubroutinesDisabled           = bailout.SubroutinesDisabled
)

// IsBailout reports whether err is, or wraps, a BailoutError.
func IsBailout(err error) bool {
    _, ok := bailout.As(err)
    return ok
}

// AsBailout extracts the BailoutError wrapped in err.
func AsBailout(err error) (*BailoutError, bool) {
    return bailout.As(err)
}
