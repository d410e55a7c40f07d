// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command judger runs a single local match: it parses CLI flags into a
// config.Config, boots a coordinator, and prints the final summary.
package main

// illegalState, if recovered from in Execute, is logged distinctly from
// any other panic, telling an unrecoverable invariant violation apart
// from an unexpected crash.
type illegalState struct {
	reason string
}

func (e illegalState) Error() string { return e.reason }

func main() {
	Execute()
}
