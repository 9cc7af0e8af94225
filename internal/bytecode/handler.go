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

package bytecode

import (
    `fmt`
)

// ExceptionHandler is one entry of the exception table of a method. Entries
// are ordered, earlier entries take priority over later ones.
type ExceptionHandler struct {
    StartBci   int      // first covered bci
    EndBci     int      // first bci past the covered range
    HandlerBci int
    CatchType  int      // constant pool index of the caught class, 0 catches everything
    TypeName   string
}

func (self *ExceptionHandler) IsCatchAll() bool {
    return self.CatchType == 0
}

func (self *ExceptionHandler) Covers(bci int) bool {
    return self.StartBci <= bci && bci < self.EndBci
}

func (self *ExceptionHandler) String() string {
    if self.IsCatchAll() {
        return fmt.Sprintf("[%d, %d) -> %d any", self.StartBci, self.EndBci, self.HandlerBci)
    } else if self.TypeName != "" {
        return fmt.Sprintf("[%d, %d) -> %d %s", self.StartBci, self.EndBci, self.HandlerBci, self.TypeName)
    } else {
        return fmt.Sprintf("[%d, %d) -> %d #%d", self.StartBci, self.EndBci, self.HandlerBci, self.CatchType)
    }
}
