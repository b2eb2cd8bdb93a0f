// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package buildgraph

import (
	"path"
	"strings"
)

// ParseSrcURI turns a package's SRC_URI variable into its distfile entries.
// SRC_URI is a whitespace-separated list of URLs, each optionally followed
// by "-> renamed_filename" to save the fetched file under a different
// local name than its URL's basename. USE-conditional markers ("flag?",
// "(" and ")") are skipped and the URLs inside every conditional group are
// kept, whatever the package's USE settings.
func ParseSrcURI(srcURI string) []DistFileEntry {
	fields := strings.Fields(srcURI)
	byFilename := map[string][]string{}
	var order []string

	for i := 0; i < len(fields); i++ {
		tok := fields[i]
		if tok == "(" || tok == ")" || strings.HasSuffix(tok, "?") {
			continue
		}

		url := tok
		filename := path.Base(url)
		if i+2 < len(fields) && fields[i+1] == "->" {
			filename = fields[i+2]
			i += 2
		}

		if _, ok := byFilename[filename]; !ok {
			order = append(order, filename)
		}
		byFilename[filename] = append(byFilename[filename], url)
	}

	entries := make([]DistFileEntry, 0, len(order))
	for _, filename := range order {
		entries = append(entries, DistFileEntry{
			Name:     "dist_" + filename,
			Filename: filename,
			Urls:     byFilename[filename],
		})
	}
	return entries
}
