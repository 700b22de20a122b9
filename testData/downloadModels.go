package main

import (
	"fmt"

	"github.com/knights-analytics/npubench"
	"github.com/knights-analytics/npubench/util/fileutil"
)

// download the MNIST test models into ./models.

var models = []string{
	"onnxmodelzoo/mnist-12-int8",
	"onnxmodelzoo/mnist-8",
}

func main() {
	ok, err := fileutil.FileExists("./models")
	if err != nil {
		panic(err)
	}
	if ok {
		return
	}
	if err = fileutil.EnsureDir("./models"); err != nil {
		panic(err)
	}
	for _, modelName := range models {
		modelPath, dlErr := npubench.DownloadModel(modelName, "./models", npubench.NewDownloadOptions())
		if dlErr != nil {
			panic(dlErr)
		}
		fmt.Println(modelPath)
	}
}
