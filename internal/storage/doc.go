/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage implements local deck persistence.
// SQLiteStore keeps every deck in an embedded SQLite database (WAL mode, versioned schema with migrations).
// Autosave files are standalone JSON copies of a deck written with transactional writes and timestamped backups;
// they are used for crash recovery and never read by the editor in normal operation.
package storage
