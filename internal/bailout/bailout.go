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

package bailout

import (
    `fmt`

    `github.com/pkg/errors`
)

type Category uint8

const (
    MalformedControlFlow Category = iota + 1
    UnsupportedStructure
)

func (self Category) String() string {
    switch self {
        case MalformedControlFlow : return "malformed-control-flow"
        case UnsupportedStructure : return "unsupported-structure"
        default                   : return fmt.Sprintf("category(%d)", uint8(self))
    }
}

type Rule uint8

const (
    ExceptionEntryReachedNormally Rule = iota + 1
    DanglingSplit
    InvalidBytecode
    UnbalancedMonitors
    IrreducibleLoop
    TooManyLoops
    LoopFromHandler
    SubroutineTooDeep
    UnstructuredSubroutine
    SubroutinesDisabled
)

var _RuleNames = [...]string {
    ExceptionEntryReachedNormally : "exception-entry-reached-normally",
    DanglingSplit                 : "dangling-split",
    InvalidBytecode               : "invalid-bytecode",
    UnbalancedMonitors            : "unbalanced-monitors",
    IrreducibleLoop               : "irreducible-loop",
    TooManyLoops                  : "too-many-loops",
    LoopFromHandler               : "loop-from-handler",
    SubroutineTooDeep             : "subroutine-too-deep",
    UnstructuredSubroutine        : "unstructured-subroutine",
    SubroutinesDisabled           : "subroutines-disabled",
}

func (self Rule) String() string {
    if int(self) < len(_RuleNames) && _RuleNames[self] != "" {
        return _RuleNames[self]
    } else {
        return fmt.Sprintf("rule(%d)", uint8(self))
    }
}

// Category returns the failure class the rule belongs to.
func (self Rule) Category() Category {
    switch self {
        case ExceptionEntryReachedNormally : fallthrough
        case DanglingSplit                 : fallthrough
        case InvalidBytecode               : fallthrough
        case UnbalancedMonitors            : return MalformedControlFlow
        default                            : return UnsupportedStructure
    }
}

// Error is a permanent bailout: the method cannot be compiled and must stay
// interpreted. Retrying the same method always fails the same way.
type Error struct {
    Rule Rule
    Bci  int
    Msg  string
}

func (self *Error) Error() string {
    if self.Bci >= 0 {
        return fmt.Sprintf("bailout(%s) at bci %d: %s", self.Rule, self.Bci, self.Msg)
    } else {
        return fmt.Sprintf("bailout(%s): %s", self.Rule, self.Msg)
    }
}

// Category is a shorthand of self.Rule.Category().
func (self *Error) Category() Category {
    return self.Rule.Category()
}

func New(rule Rule, bci int, msg string) *Error {
    return &Error {
        Rule : rule,
        Bci  : bci,
        Msg  : msg,
    }
}

func Newf(rule Rule, bci int, format string, args ...interface{}) *Error {
    return New(rule, bci, fmt.Sprintf(format, args...))
}

// Throw aborts the current compilation with a bailout.
func Throw(rule Rule, bci int, format string, args ...interface{}) {
    panic(Newf(rule, bci, format, args...))
}

// Rescue converts a panic carrying an error back into a returned error. Any
// other panic value is re-raised.
func Rescue(ep *error) {
    if val := recover(); val != nil {
        if err, ok := val.(error); ok {
            *ep = err
        } else {
            panic(val)
        }
    }
}

// As extracts the bailout from err, looking through any wrapping.
func As(err error) (*Error, bool) {
    var be *Error
    if errors.As(err, &be) {
        return be, true
    } else {
        return nil, false
    }
}
