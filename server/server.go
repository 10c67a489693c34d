package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xhad/storagerag/internal/models"
	"github.com/xhad/storagerag/pkg/extract"
	"github.com/xhad/storagerag/pkg/rag"
	"github.com/xhad/storagerag/pkg/scraper"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

type QueryRequest struct {
	Question string `json:"question"`
}

type QueryResponse struct {
	Answer string `json:"answer"`
}

type UploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	models.IndexResult
}

// IndexStatus reports a null active_collection until a document is indexed.
type IndexStatus struct {
	ActiveCollection *string `json:"active_collection"`
	HasActiveIndex   bool    `json:"has_active_index"`
}

type HealthResponse struct {
	Status string `json:"status"`
	IndexStatus
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

type Config struct {
	MaxUploadMB   int
	MinUploadSize int
}

type Server struct {
	config    Config
	engine    *rag.Engine
	extractor *extract.Extractor
	scraper   *scraper.Scraper
}

func New(engine *rag.Engine, extractor *extract.Extractor, scraper *scraper.Scraper, config Config) *Server {
	if config.MaxUploadMB == 0 {
		config.MaxUploadMB = 50
	}
	if config.MinUploadSize == 0 {
		config.MinUploadSize = 100
	}
	return &Server{
		config:    config,
		engine:    engine,
		extractor: extractor,
		scraper:   scraper,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload-pdf", s.handleUploadPDF)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("Starting server on %s", addr)
	return srv.ListenAndServe()
}

func (s *Server) handleUploadPDF(w http.ResponseWriter, r *http.Request) {
	s.upload(w, r, func(filename string) error {
		if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
			return errors.New("only .pdf files are allowed")
		}
		return nil
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.upload(w, r, func(filename string) error {
		if !s.extractor.Supports(filename) {
			return fmt.Errorf("unsupported file type, expected one of %s",
				strings.Join(s.extractor.Extensions(), ", "))
		}
		return nil
	})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request, accept func(filename string) error) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.config.MaxUploadMB)<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d MB", s.config.MaxUploadMB))
			return
		}
		writeError(w, http.StatusBadRequest, "a multipart 'file' field is required")
		return
	}
	defer file.Close()

	if err := accept(header.Filename); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read upload: %v", err))
		return
	}
	if len(data) < s.config.MinUploadSize {
		writeError(w, http.StatusBadRequest, "File is empty or too small to be a valid document")
		return
	}

	result, err := s.engine.Index(r.Context(), data, header.Filename)
	if err != nil {
		log.Printf("Upload of %s failed: %v", header.Filename, err)
		writeError(w, statusFor(err), fmt.Sprintf("Processing failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Message:     "Document processed and indexed",
		Filename:    header.Filename,
		IndexResult: result,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := s.engine.Answer(r.Context(), req.Question)
	if errors.Is(err, rag.ErrNoActiveIndex) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		log.Printf("Query failed: %v", err)
		writeError(w, statusFor(err), fmt.Sprintf("Query failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{Answer: answer})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		IndexStatus: indexStatus(s.engine.Status()),
	})
}

func indexStatus(st models.Status) IndexStatus {
	out := IndexStatus{HasActiveIndex: st.HasActiveIndex}
	if st.HasActiveIndex {
		name := st.ActiveCollection
		out.ActiveCollection = &name
	}
	return out
}

func statusFor(err error) int {
	var extractErr *rag.ExtractionError
	switch {
	case errors.Is(err, rag.ErrNoActiveIndex):
		return http.StatusServiceUnavailable
	case errors.As(err, &extractErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msgType, content string, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := Message{
		Type:    msgType,
		Content: content,
		Data:    data,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ws := &wsConn{conn: conn}
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Error reading message: %v", err)
			}
			cancel()
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			ws.send("error", fmt.Sprintf("invalid message: %v", err), nil)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, ws, msg)
		}()
	}
}

func (s *Server) handleMessage(ctx context.Context, ws *wsConn, msg Message) {
	if msg.Type == "status" {
		ws.send("status", "", indexStatus(s.engine.Status()))
		return
	}

	query := strings.TrimSpace(msg.Content)

	// Check for URL in the query
	if url := scraper.FindURL(query); url != "" {
		ws.send("status", fmt.Sprintf("Processing URL: %s", url), nil)

		doc, err := s.scraper.Fetch(ctx, url)
		if err != nil {
			ws.send("error", fmt.Sprintf("Failed to fetch URL: %v", err), nil)
			return
		}

		result, err := s.engine.Index(ctx, doc.Data, doc.Filename)
		if err != nil {
			ws.send("error", fmt.Sprintf("Failed to index URL: %v", err), nil)
			return
		}
		ws.send("indexed", fmt.Sprintf("Indexed %d chunks into collection: %s",
			result.ChunkCount, result.CollectionName), result)

		// Only continue with chat if query contains more than just the URL
		query = strings.TrimSpace(strings.Replace(query, url, "", 1))
		if query == "" {
			return
		}
	}

	if query == "" {
		ws.send("error", "question is required", nil)
		return
	}

	answer, err := s.engine.Answer(ctx, query)
	if err != nil {
		ws.send("error", err.Error(), nil)
		return
	}
	ws.send("response", answer, nil)
}
