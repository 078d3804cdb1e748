package web

import "net/http"

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS())))
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /{$}", s.handleLanding)
	mux.HandleFunc("GET /auth/google/login", s.handleLogin)
	mux.HandleFunc("GET /auth/google/callback", s.handleCallback)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/logout", s.handleLogout)

	mux.HandleFunc("GET /dashboard", s.page(s.handleDashboard))
	mux.HandleFunc("GET /settings", s.page(s.handleSettingsPage))
	mux.HandleFunc("GET /templates", s.page(s.handleTemplatesPage))
	mux.HandleFunc("GET /contacts", s.page(s.handleContactsPage))
	mux.HandleFunc("GET /watcher", s.page(s.handleWatcherPage))
	mux.HandleFunc("GET /chat", s.page(s.handleChatPage))
	mux.HandleFunc("GET /free-answer", s.page(s.handleFreeAnswerPage))
	mux.HandleFunc("GET /mcq", s.page(s.handleMCQPage))
	mux.HandleFunc("GET /mcq/quiz", s.page(s.handleQuizPage))
	mux.HandleFunc("POST /mcq/quiz", s.page(s.handleQuizSubmit))
	mux.HandleFunc("GET /references", s.page(s.handleReferencesPage))
	mux.HandleFunc("GET /history", s.page(s.handleHistoryPage))
	mux.HandleFunc("GET /history/{id}", s.page(s.handleRunPage))

	mux.HandleFunc("GET /api/me", s.api(s.handleMe))

	mux.HandleFunc("GET /api/config", s.api(s.handleGetConfig))
	mux.HandleFunc("POST /api/config", s.api(s.handleSaveConfig))

	mux.HandleFunc("GET /api/templates", s.api(s.handleListTemplates))
	mux.HandleFunc("POST /api/templates/upload", s.api(s.handleUploadTemplate))
	mux.HandleFunc("DELETE /api/templates/{name}", s.api(s.handleDeleteTemplate))

	mux.HandleFunc("POST /api/watcher/start", s.api(s.handleWatcherStart))
	mux.HandleFunc("POST /api/watcher/stop", s.api(s.handleWatcherStop))
	mux.HandleFunc("GET /api/watcher/status", s.api(s.handleWatcherStatus))
	mux.HandleFunc("POST /api/process-image", s.api(s.handleProcessImage))

	mux.HandleFunc("GET /api/sheet-preview", s.api(s.handleSheetPreview))
	mux.HandleFunc("POST /api/send-emails", s.api(s.handleSendEmails))
	mux.HandleFunc("POST /api/contacts/download", s.api(s.handleDownloadContacts))
	mux.HandleFunc("POST /api/references/upload", s.api(s.handleUploadReferences))

	mux.HandleFunc("POST /api/chat", s.api(s.handleChat))
	mux.HandleFunc("GET /api/chat/history", s.api(s.handleChatHistory))
	mux.HandleFunc("DELETE /api/chat/history", s.api(s.handleClearChat))
	mux.HandleFunc("POST /api/free-answer", s.api(s.handleFreeAnswer))

	mux.HandleFunc("GET /api/quiz", s.api(s.handleDrawQuiz))
	mux.HandleFunc("POST /api/quiz/answer", s.api(s.handleCheckAnswer))

	mux.HandleFunc("GET /api/history", s.api(s.handleListRuns))
	mux.HandleFunc("GET /api/history/{id}", s.api(s.handleGetRun))

	mux.HandleFunc("GET /api/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no such endpoint")
	})
	mux.HandleFunc("GET /", s.handleNotFound)
	return mux
}
