// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package impact

import "fmt"

// EntryImpact reports one entry point whose call tree reaches changed code.
type EntryImpact struct {
	// Entry is the entry method as "Class.method".
	Entry string `json:"entry"`

	// File is the entry file from the originating request.
	File string `json:"entry_file"`

	// Touched lists the changed methods the entry's tree reaches, sorted.
	Touched []string `json:"touched"`
}

// Report is the result of checking entry points against a patch.
type Report struct {
	// ChangedFiles and ChangedMethods echo the parsed change set.
	ChangedFiles   []string        `json:"changed_files"`
	ChangedMethods []ChangedMethod `json:"changed_methods"`

	// Impacted lists entries whose trees reach changed methods, sorted by
	// entry name.
	Impacted []EntryImpact `json:"impacted"`

	// Clean lists entries whose trees reach no changed method, sorted.
	Clean []string `json:"clean"`
}

// Summary renders a one-line overview, e.g. "2 of 5 entries impacted by 3
// changed methods".
func (r *Report) Summary() string {
	return fmt.Sprintf("%d of %d entries impacted by %d changed methods",
		len(r.Impacted), len(r.Impacted)+len(r.Clean), len(r.ChangedMethods))
}
