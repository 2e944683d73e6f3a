// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream_test

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log"

	"github.com/lemon4ksan/zipstream"
)

func ExampleWriter() {
	buf := new(bytes.Buffer)
	zw := zipstream.NewWriter(buf)

	files := []struct {
		name, body string
		method     zipstream.CompressionMethod
	}{
		{"readme.txt", "This archive contains some text files.", zipstream.Store},
		{"gopher.txt", "Gopher names:\nGeorge\nGeoffrey\nGonzo", zipstream.Deflate},
	}
	for _, file := range files {
		err := zw.PutNextEntry(zipstream.EntryHeader{
			Name:   file.name,
			Method: file.method,
			Size:   int64(len(file.body)),
		})
		if err != nil {
			log.Fatal(err)
		}
		if _, err := io.WriteString(zw, file.body); err != nil {
			log.Fatal(err)
		}
		if err := zw.CloseEntry(); err != nil {
			log.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		log.Fatal(err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		log.Fatal(err)
	}
	for _, f := range zr.File {
		fmt.Printf("%s %d bytes\n", f.Name, f.UncompressedSize64)
	}
	// Output:
	// readme.txt 38 bytes
	// gopher.txt 35 bytes
}

func ExampleWriter_encrypted() {
	zw := zipstream.NewWriter(io.Discard, zipstream.WithPassword([]byte("secret")))

	err := zw.PutNextEntry(zipstream.EntryHeader{
		Name:       "report.csv",
		Method:     zipstream.Deflate,
		Encryption: zipstream.AES,
		Size:       zipstream.SizeUnknown,
	})
	if err != nil {
		log.Fatal(err)
	}
	if _, err := io.WriteString(zw, "q1,q2,q3\n10,20,30\n"); err != nil {
		log.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		log.Fatal(err)
	}

	rec := zw.Entries()[0]
	fmt.Println(rec.HeaderMethod(), rec.AESStrength, rec.CRC32)
	// Output: 99 aes-256 0
}
