// Copyright 2025 PolyCrypt GmbH
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

// Package channel contains the adjudicator of multi-party state channels.
// Participants sign channel states off-ledger. The Adjudicator keeps custody
// of deposits, settles disputes by challenge and timeout or by unanimous
// conclusion, and transfers finalized outcomes, resolving guarantees that let
// a channel be funded through other channels. Funder and Watcher are the
// participant side helpers driving deposits and transfers.
package channel
