package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gin-gonic/gin"
)

var slugRe = regexp.MustCompile(`^[a-z0-9-]+$`)

func main() {
	// serves <dir>/<slug>.json at GET /stores/:slug
	dir := flag.String("dir", "data/mirror", "snapshot directory written by export-mirror")
	addr := flag.String("addr", ":9000", "listen address")
	flag.Parse()

	router := gin.Default()
	router.GET("/stores/:slug", func(c *gin.Context) {
		slug := c.Param("slug")
		if !slugRe.MatchString(slug) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slug"})
			return
		}

		b, err := os.ReadFile(filepath.Join(*dir, slug+".json"))
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for " + slug})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot read snapshot: " + err.Error()})
			return
		}
		if !json.Valid(b) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot is not valid JSON"})
			return
		}

		c.Data(http.StatusOK, "application/json", b)
	})

	log.Printf("mirror-server listening on %s", *addr)
	log.Fatal(router.Run(*addr))
}
