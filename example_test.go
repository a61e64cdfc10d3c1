package koatap_test

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/adamwoolhether/koatap"
	"github.com/adamwoolhether/koatap/tap"
)

func ExampleNew() {
	svc, err := koatap.New(tap.WithCookieFile(filepath.Join("testdata", "koa.cookies")))
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	res, err := svc.SubmitAsync(context.Background(), tap.Query{
		ADQL:    "select koaid, filehand from koa_hires where koaid like 'HI.20190101%'",
		Format:  "ipac",
		OutPath: "hires.tbl",
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(res.Path, res.Bytes)
}
