package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrPermissionDenied  ErrCode = "PERMISSION_DENIED"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrStaffAccessOnly   ErrCode = "STAFF_ACCESS_ONLY"
	ErrNotAttemptOwner   ErrCode = "NOT_ATTEMPT_OWNER"
	ErrInvalidResume     ErrCode = "INVALID_RESUME_TOKEN"
	ErrNotExamAuthor     ErrCode = "NOT_EXAM_AUTHOR"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Eligibility ───────────────────────────────────────────────────
	ErrExamNotFound        ErrCode = "EXAM_NOT_FOUND"
	ErrExamNotPublished    ErrCode = "EXAM_NOT_PUBLISHED"
	ErrExamNotOpen         ErrCode = "EXAM_NOT_OPEN"
	ErrExamClosed          ErrCode = "EXAM_CLOSED"
	ErrAttemptLimitReached ErrCode = "ATTEMPT_LIMIT_REACHED"
	ErrCooldownActive      ErrCode = "COOLDOWN_ACTIVE"
	ErrAttemptInProgress   ErrCode = "ATTEMPT_IN_PROGRESS"

	// ─── Attempt integrity ─────────────────────────────────────────────
	ErrAttemptNotFound      ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptNotInProgress ErrCode = "ATTEMPT_NOT_IN_PROGRESS"
	ErrAttemptExpired       ErrCode = "ATTEMPT_EXPIRED"
	ErrAttemptAbandoned     ErrCode = "ATTEMPT_ABANDONED"
	ErrDuplicateResponse    ErrCode = "DUPLICATE_RESPONSE"
	ErrUnknownQuestion      ErrCode = "UNKNOWN_QUESTION"

	// ─── Late access ───────────────────────────────────────────────────
	ErrLateCodeInvalid     ErrCode = "LATE_CODE_INVALID"
	ErrLateCodeDeactivated ErrCode = "LATE_CODE_DEACTIVATED"
	ErrLateCodeExpired     ErrCode = "LATE_CODE_EXPIRED"
	ErrLateCodeExhausted   ErrCode = "LATE_CODE_EXHAUSTED"
	ErrLateCodeNotYours    ErrCode = "LATE_CODE_NOT_YOURS"
	ErrLateCodeAlreadyUsed ErrCode = "LATE_CODE_ALREADY_USED"
	ErrLateCodeNotFound    ErrCode = "LATE_CODE_NOT_FOUND"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrPermissionDenied:
		return "Izin ditolak."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrStaffAccessOnly:
		return "Sumber daya ini terbatas untuk guru dan staf."
	case ErrNotAttemptOwner:
		return "Percobaan ujian ini milik pengguna lain."
	case ErrInvalidResume:
		return "Token lanjutan ujian tidak valid."
	case ErrNotExamAuthor:
		return "Anda bukan pembuat ujian ini."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrConflict:
		return "Sumber daya sudah ada."

	// ─── Eligibility ───────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Ujian tidak ditemukan."
	case ErrExamNotPublished:
		return "Ujian ini belum dipublikasikan."
	case ErrExamNotOpen:
		return "Ujian ini belum dibuka."
	case ErrExamClosed:
		return "Waktu ujian telah berakhir. Gunakan kode akses terlambat."
	case ErrAttemptLimitReached:
		return "Batas jumlah percobaan ujian telah tercapai."
	case ErrCooldownActive:
		return "Harap tunggu sebelum memulai percobaan berikutnya."
	case ErrAttemptInProgress:
		return "Masih ada percobaan ujian yang sedang berlangsung."

	// ─── Attempt integrity ─────────────────────────────────────────────
	case ErrAttemptNotFound:
		return "Percobaan ujian tidak ditemukan."
	case ErrAttemptNotInProgress:
		return "Percobaan ujian sudah tidak berlangsung."
	case ErrAttemptExpired:
		return "Waktu pengerjaan ujian telah habis."
	case ErrAttemptAbandoned:
		return "Ujian dihentikan karena batas perpindahan tab terlampaui."
	case ErrDuplicateResponse:
		return "Jawaban untuk soal ini sudah tercatat."
	case ErrUnknownQuestion:
		return "Soal tidak termasuk dalam ujian ini."

	// ─── Late access ───────────────────────────────────────────────────
	case ErrLateCodeInvalid:
		return "Kode akses terlambat tidak valid."
	case ErrLateCodeDeactivated:
		return "Kode akses terlambat telah dinonaktifkan."
	case ErrLateCodeExpired:
		return "Kode akses terlambat telah kedaluwarsa."
	case ErrLateCodeExhausted:
		return "Kode akses terlambat sudah habis digunakan."
	case ErrLateCodeNotYours:
		return "Kode akses terlambat ini diberikan untuk siswa lain."
	case ErrLateCodeAlreadyUsed:
		return "Anda sudah menggunakan kode akses terlambat ini."
	case ErrLateCodeNotFound:
		return "Kode akses terlambat tidak ditemukan."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
