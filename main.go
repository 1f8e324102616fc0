package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/websocket"
)

func main() {
	if len(os.Args) > 0 {
		dir, _ := filepath.Split(os.Args[0])
		if dir != "" {
			err := os.Chdir(dir)
			if err != nil {
				log.Fatalf("cannot cd into %q: %s", dir, err)
			}
		}
	}

	config := &Config{}
	err := config.Init()
	if err != nil {
		log.Fatalf("cannot init config system: %s", err)
	}

	logfile, err := os.OpenFile(config.LogPath(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err == nil {
		log.SetOutput(io.MultiWriter(os.Stderr, logfile))
	} else {
		log.Printf("cannot open log file: %s", err)
	}

	err = config.Load()
	if errors.Is(err, ErrNoConfig) {
		log.Printf("first run: %s", err)
		err = config.WriteDefault()
	}
	if err != nil {
		log.Fatalf("error loading config file: %s", err)
	}

	alerter := NewAlerter()
	fixer := NewFixer(config, alerter)
	fixer.Desktop = desktopResolution

	script_engine := NewScriptEngine(fixer, alerter)
	if config.Script != "" {
		if err := script_engine.Load(config.Script); err != nil {
			log.Printf("cannot load script: %s", err)
		}
	}

	sound := NewSound(config)
	err = sound.Init()
	if err != nil {
		log.Printf("cannot start sound system: %s", err)
	}

	var patcher *Patcher
	var patcher_mu sync.Mutex

	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	if err := config.InitAssetsTemplates(r); err != nil {
		log.Fatalf("cannot init templates: %s", err)
	}

	csrf_buf := make([]byte, 16)
	_, err = rand.Read(csrf_buf)
	if err != nil {
		log.Fatalf("cannot read random bytes: %s", err)
	}
	csrf := base64.RawURLEncoding.EncodeToString(csrf_buf)

	// The panel listens on localhost, but any page in a local browser
	// can still POST here. Every mutating route checks the token.
	check_csrf := func(c *gin.Context) bool {
		if c.PostForm("csrf") == csrf {
			return true
		}

		c.AbortWithStatusJSON(http.StatusOK, gin.H{
			"error": "bad_csrf",
		})
		return false
	}

	apply_run := func(pt *Patcher) {
		err := fixer.Apply(pt)
		if err != nil {
			log.Printf("cannot apply fixes: %s", err)
			alerter.Broadcast(Alert{
				Fix:  "attach",
				Text: fmt.Sprintf("apply failed: %s", err),
			})
			return
		}

		if config.AlertSound != "" {
			err := sound.Play(config.AlertSound, config.AlertVolume)
			if err != nil {
				log.Printf("cannot play %q: %s", config.AlertSound, err)
			}
		}
	}

	r.GET("/", func(c *gin.Context) {
		tab := c.Query("tab")
		if tab == "" {
			tab = "game"
		}

		patcher_mu.Lock()
		pt := patcher
		patcher_mu.Unlock()

		c.HTML(http.StatusOK, "index.html", gin.H{
			"CSRF":    csrf,
			"Tab":     tab,
			"Config":  config,
			"Fixer":   fixer,
			"Patcher": pt,
		})
	})

	r.POST("/attach", func(c *gin.Context) {
		var p struct {
			Pid int `form:"pid"`
		}

		if err := c.ShouldBind(&p); err != nil {
			c.AbortWithError(http.StatusBadRequest, err)
			return
		}

		if !check_csrf(c) {
			return
		}

		patcher_mu.Lock()
		defer patcher_mu.Unlock()

		if patcher != nil {
			// Attaching twice re-runs the fixes on the process we
			// already hold.
			go apply_run(patcher)
			c.Redirect(http.StatusFound, "/?tab=fixes")
			return
		}

		pid := p.Pid
		if pid == 0 {
			found, err := FindProcess(config.Process)
			if err != nil {
				c.HTML(http.StatusOK, "error.html", gin.H{"Error": err.Error()})
				return
			}
			pid = found
		}

		pt, err := NewPatcher(pid, config.Process)
		if err != nil {
			c.HTML(http.StatusOK, "error.html", gin.H{"Error": err.Error()})
			return
		}

		patcher = pt
		alerter.Broadcast(Alert{
			Fix:  "attach",
			Text: fmt.Sprintf("attached to pid %d", pid),
		})

		go apply_run(pt)
		c.Redirect(http.StatusFound, "/?tab=fixes")
	})

	r.POST("/detach", func(c *gin.Context) {
		if !check_csrf(c) {
			return
		}

		patcher_mu.Lock()
		pt := patcher
		patcher = nil
		patcher_mu.Unlock()

		if pt == nil {
			c.HTML(http.StatusOK, "error.html", gin.H{"Error": "not attached"})
			return
		}

		if err := pt.Detach(); err != nil {
			c.HTML(http.StatusOK, "error.html", gin.H{"Error": err.Error()})
			return
		}

		alerter.Broadcast(Alert{Fix: "detach", Text: "detached"})
		c.Redirect(http.StatusFound, "/?tab=game")
	})

	r.POST("/launch", func(c *gin.Context) {
		var p struct {
			Path string `form:"path"`
			Args string `form:"args"`
		}

		if err := c.ShouldBind(&p); err != nil {
			c.AbortWithError(http.StatusBadRequest, err)
			return
		}

		if !check_csrf(c) {
			return
		}

		var args []string
		for _, line := range strings.Split(p.Args, "\n") {
			line = strings.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			if line[0] == '#' {
				continue
			}

			if line[0] == '-' || line[0] == '+' {
				idx := strings.IndexRune(line, ' ')
				if idx == -1 {
					args = append(args, line)
				} else {
					args = append(args, line[0:idx], line[idx+1:])
				}
			} else {
				args = append(args, line)
			}
		}

		pid, err := LaunchGame(p.Path, args)
		if err != nil {
			c.HTML(http.StatusOK, "error.html", gin.H{"Error": err.Error()})
			return
		}

		log.Printf("Game is up with pid %d.", pid)

		config.GameExe = p.Path
		config.GameArgs = p.Args
		if err := config.Save(); err != nil {
			log.Printf("cannot save config: %s", err)
		}

		c.Redirect(http.StatusFound, "/?tab=game")
	})

	r.POST("/exepatch", func(c *gin.Context) {
		if !check_csrf(c) {
			return
		}

		err := PatchExe(config.GameExe, config.Resolution, desktopResolution())
		if err != nil {
			c.HTML(http.StatusOK, "error.html", gin.H{"Error": err.Error()})
			return
		}

		alerter.Broadcast(Alert{Fix: "exepatch", Text: "game binary patched"})
		c.Redirect(http.StatusFound, "/?tab=game")
	})

	r.POST("/loadscript", func(c *gin.Context) {
		var p struct {
			Script string `form:"script"`
		}

		if err := c.ShouldBind(&p); err != nil {
			c.AbortWithError(http.StatusBadRequest, err)
			return
		}

		if !check_csrf(c) {
			return
		}

		script := strings.TrimSpace(p.Script)
		if script == "" {
			script = config.Script
		}

		err := script_engine.Load(script)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusOK, gin.H{
				"error":       "script_error",
				"description": err.Error(),
			})
			return
		}

		config.Script = script
		if err := config.Save(); err != nil {
			log.Printf("cannot save config: %s", err)
		}

		c.Redirect(http.StatusFound, "/?tab=script")
	})

	r.POST("/config", func(c *gin.Context) {
		var p struct {
			MasterEnable string `form:"masterEnable"`
			CenterHud    string `form:"centerHud"`
			Width        int    `form:"width"`
			Height       int    `form:"height"`
			Process      string `form:"process"`
			AlertSound   string `form:"alertSound"`
			AlertVolume  int    `form:"alertVolume"`
		}

		if err := c.ShouldBind(&p); err != nil {
			c.AbortWithError(http.StatusBadRequest, err)
			return
		}

		if !check_csrf(c) {
			return
		}

		config.MasterEnable = p.MasterEnable == "on"
		config.Fixes.CenterHud.Enable = p.CenterHud == "on"
		config.Resolution = Resolution{Width: p.Width, Height: p.Height}
		config.Process = p.Process
		config.AlertSound = p.AlertSound
		config.AlertVolume = p.AlertVolume

		if err := config.Save(); err != nil {
			log.Printf("cannot save config: %s", err)
		}

		c.Redirect(http.StatusFound, "/?tab=config")
	})

	r.GET("/events/ws", func(c *gin.Context) {
		handler := websocket.Handler(func(ws *websocket.Conn) {
			defer ws.Close()
			enc := json.NewEncoder(ws)
			ch := alerter.Subscribe()
			for {
				select {
				case <-c.Request.Context().Done():
					return
				case alert := <-ch:
					err := enc.Encode(alert)
					if err != nil {
						log.Printf("cannot send alert: %s", err)
						return
					}
				}
			}
		})
		handler.ServeHTTP(c.Writer, c.Request)
	})

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigch

		patcher_mu.Lock()
		pt := patcher
		patcher_mu.Unlock()

		if pt != nil {
			// Breakpoint bytes left behind would crash the game.
			if err := pt.Detach(); err != nil {
				log.Printf("cannot detach: %s", err)
			}
		}
		os.Exit(0)
	}()

	l, err := net.Listen("tcp", "localhost:8666")
	if err != nil {
		log.Panic(err)
	}

	log.Println("Starting up a server on http://localhost:8666/")
	go func() {
		switch runtime.GOOS {
		case "linux":
			exec.Command("xdg-open", "http://localhost:8666/").Start()
		case "windows":
			exec.Command(
				"rundll32",
				"url.dll,FileProtocolHandler",
				"http://localhost:8666/",
			).Start()
		case "darwin":
			exec.Command("open", "http://localhost:8666/").Start()
		}
	}()
	log.Panic(r.RunListener(l))
}

// vim: ai:ts=8:sw=8:noet:syntax=go
