// Copyright 2025-2026 Docker, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/docker/keystore/x/oshelper"
)

func main() {
	ctx, cancel := oshelper.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	s := &session{}
	err := rootCommand(ctx, s).Execute()
	s.close(context.WithoutCancel(ctx))
	cancel()

	if sig, ok := oshelper.TerminatedBy(ctx); ok {
		os.Exit(sig.ExitCode())
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
