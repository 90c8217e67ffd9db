/*
Copyright 2024 Warpgate Labs.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command warpgate runs a Warpgate SSH bastion instance, or manages its
// configuration via trust-host-key, hash-password and ticket subcommands.
package main

import (
	"github.com/warpgate-labs/warpgate/tool/warpgate/common"
)

func main() {
	common.Run([]common.CLICommand{
		&common.StartCommand{},
		&common.TrustHostKeyCommand{},
		&common.HashPasswordCommand{},
		&common.TicketCommand{},
	})
}
